// Package usecase wires anchor building, retrieval and diversification into
// the three operations exposed to callers: BuildOrLoadAnchor, SelectDiverse
// and Inspect.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"curator/internal/anchor"
	"curator/internal/diversify"
	"curator/internal/domain"
	"curator/internal/port"
	"curator/internal/vecmath"
)

// Options tune selection behavior around the core algorithm.
type Options struct {
	// RetrieveMin and RetrievePerK size the candidate pool handed to the
	// diversifier: k_retrieved = max(RetrieveMin, K*RetrievePerK).
	RetrieveMin  int
	RetrievePerK int

	// ReuseCooldownDays holds images used by any recent selection out of
	// new pools. 0 disables the cooldown.
	ReuseCooldownDays int

	// ExcludeUsernames are glob patterns; candidates from matching source
	// accounts are dropped from the pool.
	ExcludeUsernames []string

	// BannedKeywords drop candidates whose aesthetic text contains any of
	// them.
	BannedKeywords []string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		RetrieveMin:       200,
		RetrievePerK:      40,
		ReuseCooldownDays: 14,
	}
}

// Curator runs the selection pipeline over injected capabilities. All I/O
// happens through the ports; no timeouts are imposed here, callers set
// deadlines on ctx.
type Curator struct {
	library port.Library
	search  port.NeighborSearch
	anchors port.AnchorStore
	gate    port.ContentGate
	builder *anchor.Builder
	div     *diversify.Diversifier
	opts    Options
	now     func() time.Time
}

// NewCurator creates a Curator. gate may be nil to disable content gating.
func NewCurator(
	library port.Library,
	search port.NeighborSearch,
	anchors port.AnchorStore,
	gate port.ContentGate,
	builder *anchor.Builder,
	div *diversify.Diversifier,
	opts Options,
) *Curator {
	def := DefaultOptions()
	if opts.RetrieveMin <= 0 {
		opts.RetrieveMin = def.RetrieveMin
	}
	if opts.RetrievePerK <= 0 {
		opts.RetrievePerK = def.RetrievePerK
	}
	return &Curator{
		library: library,
		search:  search,
		anchors: anchors,
		gate:    gate,
		builder: builder,
		div:     div,
		opts:    opts,
		now:     time.Now,
	}
}

// BuildOrLoadAnchor returns the cached anchor for accountKey, building and
// caching one when the cache is empty or force is set. Returns
// domain.ErrNoAnchor when the inspiration history yields nothing to build
// from; the cache is left untouched in that case.
func (c *Curator) BuildOrLoadAnchor(ctx context.Context, accountKey string, inspo []string, windowDays int, force bool) (*domain.Anchor, error) {
	if !force {
		cached, err := c.anchors.Load(ctx, accountKey)
		if err != nil {
			return nil, fmt.Errorf("load anchor: %w", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	res, err := c.builder.Build(ctx, inspo, windowDays)
	if err != nil {
		return nil, err
	}
	if res.Anchor == nil {
		return nil, domain.ErrNoAnchor
	}
	if err := c.anchors.Save(ctx, accountKey, res.Anchor); err != nil {
		return nil, fmt.Errorf("save anchor: %w", err)
	}
	return res.Anchor, nil
}

// SelectRequest describes one diversified-selection call.
type SelectRequest struct {
	AccountKey     string
	Inspo          []string
	WindowDays     int
	K              int
	ExcludeIDs     []string
	UsernameFilter []string
	ForceRebuild   bool
}

// SelectDiverse picks req.K diverse images near the account's anchor.
// Typed failures: domain.ErrNoAnchor, *domain.RetrievalError,
// *domain.InsufficientCandidatesError, *domain.DiversityError.
func (c *Curator) SelectDiverse(ctx context.Context, req SelectRequest) (*domain.Selection, error) {
	anc, err := c.BuildOrLoadAnchor(ctx, req.AccountKey, req.Inspo, req.WindowDays, req.ForceRebuild)
	if err != nil {
		return nil, err
	}

	kRetrieved := c.opts.RetrieveMin
	if req.K*c.opts.RetrievePerK > kRetrieved {
		kRetrieved = req.K * c.opts.RetrievePerK
	}
	pool, err := c.search.Nearest(ctx, anc.Vector, kRetrieved, port.NeighborOptions{
		IncludeCovers: false,
		Usernames:     domain.CanonicalUsernames(req.UsernameFilter),
	})
	if err != nil {
		return nil, err
	}
	pool = c.filterPool(pool)

	exclude := make(map[string]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		exclude[id] = struct{}{}
	}
	// Reuse cooldown is best effort: a failed log read degrades to no
	// cooldown rather than blocking selection.
	if c.opts.ReuseCooldownDays > 0 {
		since := c.now().AddDate(0, 0, -c.opts.ReuseCooldownDays)
		if recent, err := c.library.RecentSelectionIDs(ctx, since); err == nil {
			for _, id := range recent {
				exclude[id] = struct{}{}
			}
		}
	}

	picks, err := c.div.Select(anc.Vector, pool, req.K, exclude)
	if err != nil {
		return nil, err
	}

	gateApplied := false
	if c.gate != nil {
		if gated, ok := c.applyGate(ctx, picks, req.K); ok {
			picks = gated
			gateApplied = true
		}
	}

	sel := &domain.Selection{
		RunID:   uuid.NewString(),
		Account: domain.CanonicalUsername(req.AccountKey),
		Picks:   picks,
		Stats:   selectionStats(picks, len(pool), len(exclude), gateApplied),
	}

	// Best effort as well; the caller already has the selection in hand.
	_ = c.library.RecordSelection(ctx, *sel)

	return sel, nil
}

// applyGate filters picks through the content gate, keeping at most k
// passing images. Fail-open: the first gate error abandons filtering and
// the caller keeps the original picks (ok=false).
func (c *Curator) applyGate(ctx context.Context, picks []domain.Candidate, k int) ([]domain.Candidate, bool) {
	kept := make([]domain.Candidate, 0, k)
	for _, p := range picks {
		if len(kept) >= k {
			break
		}
		valid, err := c.gate.Validate(ctx, p.Image)
		if err != nil {
			return nil, false
		}
		if valid {
			kept = append(kept, p)
		}
	}
	return kept, true
}

// filterPool drops candidates from glob-excluded source accounts and
// candidates whose aesthetic text contains a banned keyword.
func (c *Curator) filterPool(pool []domain.ImageRecord) []domain.ImageRecord {
	if len(c.opts.ExcludeUsernames) == 0 && len(c.opts.BannedKeywords) == 0 {
		return pool
	}
	out := make([]domain.ImageRecord, 0, len(pool))
	for _, img := range pool {
		if c.usernameExcluded(img.Username) {
			continue
		}
		if c.keywordBanned(img.Aesthetic) {
			continue
		}
		out = append(out, img)
	}
	return out
}

func (c *Curator) usernameExcluded(username string) bool {
	name := domain.CanonicalUsername(username)
	for _, pattern := range c.opts.ExcludeUsernames {
		if ok, err := doublestar.Match(strings.ToLower(pattern), name); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Curator) keywordBanned(aesthetic string) bool {
	if aesthetic == "" {
		return false
	}
	text := strings.ToLower(aesthetic)
	for _, kw := range c.opts.BannedKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Inspect reports an account's selection inputs without mutating the anchor
// cache.
func (c *Curator) Inspect(ctx context.Context, accountKey string, inspo []string, windowDays int) (*domain.InspectReport, error) {
	usernames := domain.CanonicalUsernames(inspo)
	report := &domain.InspectReport{
		Account:       domain.CanonicalUsername(accountKey),
		WindowDays:    windowDays,
		InspoResolved: usernames,
	}

	since := c.now().AddDate(0, 0, -windowDays)
	posts, err := c.library.PostsByUsernames(ctx, usernames, since, c.builder.PostLimit())
	if err != nil {
		return nil, fmt.Errorf("fetch inspiration posts: %w", err)
	}
	report.PostsFound = len(posts)

	if len(posts) > 0 {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.PostID
		}
		images, err := c.library.ImagesByPosts(ctx, ids, c.builder.ImageLimit())
		if err != nil {
			return nil, fmt.Errorf("fetch inspiration images: %w", err)
		}
		report.ImagesFound = len(images)
	}

	cached, err := c.anchors.Load(ctx, accountKey)
	if err != nil {
		return nil, fmt.Errorf("load anchor: %w", err)
	}
	if cached != nil {
		report.AnchorCached = true
		builtAt := cached.BuiltAt
		report.AnchorBuiltAt = &builtAt
		stats := cached.Stats
		report.AnchorStats = &stats
	}
	return report, nil
}

func selectionStats(picks []domain.Candidate, poolSize, excluded int, gateApplied bool) domain.SelectionStats {
	stats := domain.SelectionStats{
		PoolSize:    poolSize,
		Excluded:    excluded,
		GateApplied: gateApplied,
	}
	if len(picks) == 0 {
		return stats
	}
	stats.MinAnchorDist = picks[0].AnchorDistance
	var sum float64
	for _, p := range picks {
		d := p.AnchorDistance
		if d < stats.MinAnchorDist {
			stats.MinAnchorDist = d
		}
		if d > stats.MaxAnchorDist {
			stats.MaxAnchorDist = d
		}
		sum += d
	}
	stats.AvgAnchorDist = sum / float64(len(picks))

	normalized := make([][]float32, len(picks))
	for i, p := range picks {
		normalized[i] = vecmath.Normalize(p.Image.Embedding)
	}
	minPair := 0.0
	for i := range normalized {
		for j := i + 1; j < len(normalized); j++ {
			d := vecmath.CosineDistance(normalized[i], normalized[j])
			if (i == 0 && j == 1) || d < minPair {
				minPair = d
			}
		}
	}
	stats.MinPairwiseDist = minPair
	return stats
}
