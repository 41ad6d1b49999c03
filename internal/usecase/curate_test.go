package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"curator/internal/anchor"
	"curator/internal/diversify"
	"curator/internal/domain"
	"curator/internal/port"
)

type fakeLibrary struct {
	posts      []domain.PostRecord
	images     []domain.ImageRecord
	recentIDs  []string
	recentErr  error
	recorded   []domain.Selection
	postsCalls int
}

func (f *fakeLibrary) PostsByUsernames(ctx context.Context, usernames []string, since time.Time, limit int) ([]domain.PostRecord, error) {
	f.postsCalls++
	return f.posts, nil
}

func (f *fakeLibrary) ImagesByPosts(ctx context.Context, postIDs []string, limit int) ([]domain.ImageRecord, error) {
	return f.images, nil
}

func (f *fakeLibrary) CoverImages(ctx context.Context, since time.Time, limit int) ([]domain.ImageRecord, error) {
	return nil, nil
}

func (f *fakeLibrary) RecordSelection(ctx context.Context, sel domain.Selection) error {
	f.recorded = append(f.recorded, sel)
	return nil
}

func (f *fakeLibrary) RecentSelectionIDs(ctx context.Context, since time.Time) ([]string, error) {
	return f.recentIDs, f.recentErr
}

type fakeAnchors struct {
	anchors map[string]*domain.Anchor
	saves   int
}

func newFakeAnchors() *fakeAnchors {
	return &fakeAnchors{anchors: make(map[string]*domain.Anchor)}
}

func (f *fakeAnchors) Load(ctx context.Context, key string) (*domain.Anchor, error) {
	return f.anchors[key], nil
}

func (f *fakeAnchors) Save(ctx context.Context, key string, a *domain.Anchor) error {
	if a == nil {
		return nil
	}
	f.anchors[key] = a
	f.saves++
	return nil
}

type fakeSearch struct {
	pool   []domain.ImageRecord
	lastK  int
	err    error
	lastOp port.NeighborOptions
}

func (f *fakeSearch) Nearest(ctx context.Context, vec []float32, k int, opts port.NeighborOptions) ([]domain.ImageRecord, error) {
	f.lastK = k
	f.lastOp = opts
	return f.pool, f.err
}

type fakeGate struct {
	reject map[string]bool
	err    error
	calls  int
}

func (f *fakeGate) Validate(ctx context.Context, img domain.ImageRecord) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return !f.reject[img.ID], nil
}

func vecAt(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

// seededAnchor points at [1 0]; the pool images below are placed by angle
// relative to it.
func seededAnchor() *domain.Anchor {
	return &domain.Anchor{
		Vector:  vecAt(0),
		BuiltAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Stats:   domain.BuildStats{FilterTier: domain.FilterTierStrict},
	}
}

func diversePool() []domain.ImageRecord {
	// 0° and 35° are both within the anchor ceiling and far enough apart
	// to satisfy the pairwise floor; 80° falls outside the ceiling.
	return []domain.ImageRecord{
		{ID: "img-0", Username: "alpha", Embedding: vecAt(0)},
		{ID: "img-35", Username: "beta", Embedding: vecAt(35)},
		{ID: "img-80", Username: "gamma", Embedding: vecAt(80)},
	}
}

func newTestCurator(lib *fakeLibrary, search *fakeSearch, anchors *fakeAnchors, gate port.ContentGate, opts Options) *Curator {
	b := anchor.NewBuilder(lib, anchor.DefaultParams())
	return NewCurator(lib, search, anchors, gate, b, diversify.New(0, 0, 0), opts)
}

func TestBuildOrLoadAnchor_CacheHit(t *testing.T) {
	lib := &fakeLibrary{}
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(lib, &fakeSearch{}, anchors, nil, Options{})

	got, err := c.BuildOrLoadAnchor(context.Background(), "acct", []string{"inspo"}, 90, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached anchor")
	}
	if lib.postsCalls != 0 {
		t.Errorf("cache hit should not touch the library, got %d calls", lib.postsCalls)
	}
	if anchors.saves != 0 {
		t.Errorf("cache hit should not re-save, got %d saves", anchors.saves)
	}
}

func TestBuildOrLoadAnchor_ForceRebuild(t *testing.T) {
	lib := &fakeLibrary{
		posts: []domain.PostRecord{
			{PostID: "p1", Username: "inspo", EngagementRate: 0.02, CreatedAt: time.Now().AddDate(0, 0, -2)},
		},
		images: []domain.ImageRecord{
			{ID: "i1", PostID: "p1", Embedding: vecAt(10)},
		},
	}
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(lib, &fakeSearch{}, anchors, nil, Options{})

	got, err := c.BuildOrLoadAnchor(context.Background(), "acct", []string{"inspo"}, 90, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lib.postsCalls == 0 {
		t.Error("force should rebuild from the library")
	}
	if anchors.saves != 1 {
		t.Errorf("expected 1 save, got %d", anchors.saves)
	}
	if got.Stats.PostsFound != 1 {
		t.Errorf("expected rebuilt stats, got %+v", got.Stats)
	}
}

func TestBuildOrLoadAnchor_NoHistory(t *testing.T) {
	anchors := newFakeAnchors()
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{}, anchors, nil, Options{})

	_, err := c.BuildOrLoadAnchor(context.Background(), "acct", []string{"ghost"}, 90, false)
	if !errors.Is(err, domain.ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor, got %v", err)
	}
	if anchors.saves != 0 {
		t.Error("failed build must not write to the anchor cache")
	}
}

func TestSelectDiverse_EndToEnd(t *testing.T) {
	lib := &fakeLibrary{}
	search := &fakeSearch{pool: diversePool()}
	anchors := newFakeAnchors()
	anchors.anchors["MyAccount"] = seededAnchor()
	c := newTestCurator(lib, search, anchors, nil, Options{ReuseCooldownDays: -1})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{
		AccountKey: "MyAccount",
		K:          2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Picks) != 2 {
		t.Fatalf("expected 2 picks, got %d", len(sel.Picks))
	}
	if sel.Picks[0].Image.ID != "img-0" || sel.Picks[1].Image.ID != "img-35" {
		t.Errorf("unexpected pick order: %s, %s", sel.Picks[0].Image.ID, sel.Picks[1].Image.ID)
	}
	if sel.RunID == "" {
		t.Error("expected a run ID")
	}
	if sel.Account != "myaccount" {
		t.Errorf("account not canonicalized: %q", sel.Account)
	}
	if search.lastK != 200 {
		t.Errorf("expected retrieval k=200, got %d", search.lastK)
	}
	if search.lastOp.IncludeCovers {
		t.Error("selection must not retrieve cover slides")
	}
	if len(lib.recorded) != 1 {
		t.Fatalf("expected 1 recorded selection, got %d", len(lib.recorded))
	}
	if sel.Stats.GateApplied {
		t.Error("no gate configured, GateApplied must be false")
	}
	if sel.Stats.PoolSize != 3 {
		t.Errorf("expected pool size 3, got %d", sel.Stats.PoolSize)
	}
}

func TestSelectDiverse_RetrievalScalesWithK(t *testing.T) {
	search := &fakeSearch{pool: diversePool()}
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(&fakeLibrary{}, search, anchors, nil, Options{ReuseCooldownDays: -1})

	// 10*40 exceeds the floor of 200. The selection itself fails for lack
	// of candidates; only the requested pool size matters here.
	_, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", K: 10})
	var insufficient *domain.InsufficientCandidatesError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCandidatesError, got %v", err)
	}
	if search.lastK != 400 {
		t.Errorf("expected retrieval k=400, got %d", search.lastK)
	}
}

func TestSelectDiverse_FailOpenGate(t *testing.T) {
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	gate := &fakeGate{err: errors.New("vision api down")}
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{pool: diversePool()}, anchors, gate, Options{ReuseCooldownDays: -1})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", K: 2})
	if err != nil {
		t.Fatalf("a failing gate must not fail the selection: %v", err)
	}
	if len(sel.Picks) != 2 {
		t.Fatalf("expected the ungated picks, got %d", len(sel.Picks))
	}
	if sel.Picks[0].Image.ID != "img-0" || sel.Picks[1].Image.ID != "img-35" {
		t.Errorf("gate failure changed the picks: %s, %s", sel.Picks[0].Image.ID, sel.Picks[1].Image.ID)
	}
	if sel.Stats.GateApplied {
		t.Error("GateApplied must be false after a gate failure")
	}
}

func TestSelectDiverse_GateRejects(t *testing.T) {
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	gate := &fakeGate{reject: map[string]bool{"img-0": true}}
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{pool: diversePool()}, anchors, gate, Options{ReuseCooldownDays: -1})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", K: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Picks) != 1 || sel.Picks[0].Image.ID != "img-35" {
		t.Fatalf("expected the gate to drop img-0, got %+v", sel.Picks)
	}
	if !sel.Stats.GateApplied {
		t.Error("GateApplied must be true when the gate ran cleanly")
	}
}

func TestSelectDiverse_ReuseCooldown(t *testing.T) {
	lib := &fakeLibrary{recentIDs: []string{"img-0"}}
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(lib, &fakeSearch{pool: diversePool()}, anchors, nil, Options{ReuseCooldownDays: 14})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", K: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Picks[0].Image.ID != "img-35" {
		t.Errorf("recently used image should be held out, got %s", sel.Picks[0].Image.ID)
	}
}

func TestSelectDiverse_CooldownReadFailureDegrades(t *testing.T) {
	lib := &fakeLibrary{recentErr: errors.New("log unavailable")}
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(lib, &fakeSearch{pool: diversePool()}, anchors, nil, Options{ReuseCooldownDays: 14})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", K: 1})
	if err != nil {
		t.Fatalf("a failed cooldown read must not block selection: %v", err)
	}
	if sel.Picks[0].Image.ID != "img-0" {
		t.Errorf("expected the unfiltered best pick, got %s", sel.Picks[0].Image.ID)
	}
}

func TestSelectDiverse_ExplicitExcludes(t *testing.T) {
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{pool: diversePool()}, anchors, nil, Options{ReuseCooldownDays: -1})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{
		AccountKey: "acct",
		K:          1,
		ExcludeIDs: []string{"img-0"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Picks[0].Image.ID != "img-35" {
		t.Errorf("excluded image was picked anyway: %s", sel.Picks[0].Image.ID)
	}
}

func TestSelectDiverse_PoolFilters(t *testing.T) {
	pool := diversePool()
	pool[0].Username = "spam_account"
	pool[1].Aesthetic = "cozy streetwear lingerie look"
	pool = append(pool, domain.ImageRecord{ID: "img-20", Username: "keep", Embedding: vecAt(20)})

	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{pool: pool}, anchors, nil, Options{
		ReuseCooldownDays: -1,
		ExcludeUsernames:  []string{"spam_*"},
		BannedKeywords:    []string{"lingerie"},
	})

	sel, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", K: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Picks[0].Image.ID != "img-20" {
		t.Errorf("expected filters to leave img-20, got %s", sel.Picks[0].Image.ID)
	}
}

func TestSelectDiverse_NoAnchor(t *testing.T) {
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{}, newFakeAnchors(), nil, Options{})

	_, err := c.SelectDiverse(context.Background(), SelectRequest{AccountKey: "acct", Inspo: []string{"ghost"}, K: 3})
	if !errors.Is(err, domain.ErrNoAnchor) {
		t.Fatalf("expected ErrNoAnchor, got %v", err)
	}
}

func TestInspect_DoesNotMutateCache(t *testing.T) {
	lib := &fakeLibrary{
		posts: []domain.PostRecord{
			{PostID: "p1", Username: "inspo", CreatedAt: time.Now().AddDate(0, 0, -1)},
		},
		images: []domain.ImageRecord{
			{ID: "i1", PostID: "p1", Embedding: vecAt(5)},
		},
	}
	anchors := newFakeAnchors()
	c := newTestCurator(lib, &fakeSearch{}, anchors, nil, Options{})

	report, err := c.Inspect(context.Background(), "Acct", []string{"@Inspo"}, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Account != "acct" {
		t.Errorf("account not canonicalized: %q", report.Account)
	}
	if report.PostsFound != 1 || report.ImagesFound != 1 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if report.AnchorCached {
		t.Error("no anchor is cached")
	}
	if len(anchors.anchors) != 0 || anchors.saves != 0 {
		t.Error("inspect must not write to the anchor cache")
	}
}

func TestInspect_ReportsCachedAnchor(t *testing.T) {
	anchors := newFakeAnchors()
	anchors.anchors["acct"] = seededAnchor()
	c := newTestCurator(&fakeLibrary{}, &fakeSearch{}, anchors, nil, Options{})

	report, err := c.Inspect(context.Background(), "acct", nil, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.AnchorCached || report.AnchorBuiltAt == nil || report.AnchorStats == nil {
		t.Errorf("cached anchor not reported: %+v", report)
	}
}
