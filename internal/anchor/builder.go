// Package anchor builds an account's aesthetic anchor: the weighted,
// L2-normalized centroid of its inspiration accounts' recent winner images,
// with cover/text slides filtered out.
package anchor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"curator/internal/domain"
	"curator/internal/port"
	"curator/internal/vecmath"
)

// Params tune one builder. Zero values are replaced by DefaultParams.
type Params struct {
	PostLimit           int
	ImageLimit          int
	CoverWindowDays     int
	UniformityThreshold float64
	CoverSimThreshold   float64
	RecentDays          int
	ExampleCount        int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		PostLimit:           500,
		ImageLimit:          3000,
		CoverWindowDays:     180,
		UniformityThreshold: 0.92,
		CoverSimThreshold:   0.92,
		RecentDays:          14,
		ExampleCount:        12,
	}
}

// WeightedImage is a surviving candidate with its owning post and the
// weight it contributed to the anchor mean.
type WeightedImage struct {
	Image  domain.ImageRecord
	Post   domain.PostRecord
	Weight float64
}

// Result is one build outcome. Anchor is nil when no usable history was
// found; that is a normal state, not an error.
type Result struct {
	Anchor        *domain.Anchor
	CoverCentroid []float32
	Candidates    []WeightedImage
}

// Builder produces anchors from a Library.
type Builder struct {
	library port.Library
	params  Params
	now     func() time.Time
}

// NewBuilder creates a Builder over the given library.
func NewBuilder(library port.Library, params Params) *Builder {
	def := DefaultParams()
	if params.PostLimit <= 0 {
		params.PostLimit = def.PostLimit
	}
	if params.ImageLimit <= 0 {
		params.ImageLimit = def.ImageLimit
	}
	if params.CoverWindowDays <= 0 {
		params.CoverWindowDays = def.CoverWindowDays
	}
	if params.UniformityThreshold <= 0 {
		params.UniformityThreshold = def.UniformityThreshold
	}
	if params.CoverSimThreshold <= 0 {
		params.CoverSimThreshold = def.CoverSimThreshold
	}
	if params.RecentDays <= 0 {
		params.RecentDays = def.RecentDays
	}
	if params.ExampleCount <= 0 {
		params.ExampleCount = def.ExampleCount
	}
	return &Builder{library: library, params: params, now: time.Now}
}

// PostLimit returns the post row cap used when gathering history.
func (b *Builder) PostLimit() int { return b.params.PostLimit }

// ImageLimit returns the image row cap used when gathering history.
func (b *Builder) ImageLimit() int { return b.params.ImageLimit }

// Build gathers the inspiration accounts' recent posts and images, filters
// cover slides, and returns the weighted-mean anchor. A nil Result.Anchor
// means no posts or no embedded images were found in the window.
func (b *Builder) Build(ctx context.Context, inspo []string, windowDays int) (*Result, error) {
	usernames := domain.CanonicalUsernames(inspo)
	now := b.now()
	since := now.AddDate(0, 0, -windowDays)

	centroid, err := b.coverCentroid(ctx, now)
	if err != nil {
		return nil, err
	}
	res := &Result{CoverCentroid: centroid}

	stats := domain.BuildStats{
		Inspo:         usernames,
		WindowDays:    windowDays,
		FilterTier:    domain.FilterTierStrict,
		CoverCentroid: centroid != nil,
	}

	if len(usernames) == 0 {
		return res, nil
	}

	posts, err := b.library.PostsByUsernames(ctx, usernames, since, b.params.PostLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch inspiration posts: %w", err)
	}
	stats.PostsFound = len(posts)
	if len(posts) == 0 {
		return res, nil
	}

	byID := make(map[string]domain.PostRecord, len(posts))
	postIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, dup := byID[p.PostID]; dup {
			continue
		}
		byID[p.PostID] = p
		postIDs = append(postIDs, p.PostID)
	}

	images, err := b.library.ImagesByPosts(ctx, postIDs, b.params.ImageLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch inspiration images: %w", err)
	}

	raw := make([]domain.ImageRecord, 0, len(images))
	for _, img := range images {
		if len(img.Embedding) == 0 {
			continue
		}
		if _, ok := byID[img.PostID]; !ok {
			continue
		}
		raw = append(raw, img)
	}
	stats.RawImages = len(raw)
	if len(raw) == 0 {
		return res, nil
	}

	clean := b.filterCovers(raw, centroid)
	if len(clean) == 0 {
		// Relax: drop only explicitly flagged covers.
		stats.FilterTier = domain.FilterTierRelaxed
		for _, img := range raw {
			if !img.IsCover() {
				clean = append(clean, img)
			}
		}
	}
	if len(clean) == 0 {
		// Last resort: an anchor can still be formed from the raw set.
		// The tier in stats lets callers detect the degraded quality.
		stats.FilterTier = domain.FilterTierRaw
		clean = raw
	}
	stats.Candidates = len(clean)

	weighted := make([]WeightedImage, len(clean))
	for i, img := range clean {
		post := byID[img.PostID]
		weighted[i] = WeightedImage{
			Image:  img,
			Post:   post,
			Weight: RecencyWeight(post.CreatedAt, now, b.params.RecentDays) * PerformanceWeight(post.EngagementRate),
		}
	}

	vec := weightedMean(weighted)
	if vec == nil {
		return res, nil
	}

	stats.AnchorExamples = topExamples(weighted, b.params.ExampleCount)
	res.Anchor = &domain.Anchor{
		Vector:  vecmath.Normalize(vec),
		BuiltAt: now,
		Stats:   stats,
	}
	res.Candidates = weighted
	return res, nil
}

// coverCentroid computes the normalized unweighted mean of all cover-slide
// embeddings in the wider corpus window, or nil when no covers exist.
func (b *Builder) coverCentroid(ctx context.Context, now time.Time) ([]float32, error) {
	since := now.AddDate(0, 0, -b.params.CoverWindowDays)
	covers, err := b.library.CoverImages(ctx, since, b.params.ImageLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch cover images: %w", err)
	}
	var acc []float64
	n := 0
	for _, img := range covers {
		if len(img.Embedding) == 0 {
			continue
		}
		if acc == nil {
			acc = make([]float64, len(img.Embedding))
		}
		for i, x := range img.Embedding {
			acc[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil, nil
	}
	mean := make([]float32, len(acc))
	for i, x := range acc {
		mean[i] = float32(x / float64(n))
	}
	return vecmath.Normalize(mean), nil
}

// filterCovers applies the strict filter tier: explicit cover flags, high
// background uniformity, and centroid similarity when a centroid exists.
func (b *Builder) filterCovers(images []domain.ImageRecord, centroid []float32) []domain.ImageRecord {
	out := make([]domain.ImageRecord, 0, len(images))
	for _, img := range images {
		if img.IsCover() {
			continue
		}
		if img.UniformityScore >= b.params.UniformityThreshold {
			continue
		}
		if centroid != nil && vecmath.CosineSimilarity(vecmath.Normalize(img.Embedding), centroid) >= b.params.CoverSimThreshold {
			continue
		}
		out = append(out, img)
	}
	return out
}

// RecencyWeight is 2.0 for posts created within the recency window, 1.0
// otherwise.
func RecencyWeight(createdAt, now time.Time, recentDays int) float64 {
	if !createdAt.Before(now.AddDate(0, 0, -recentDays)) {
		return 2.0
	}
	return 1.0
}

// PerformanceWeight maps an engagement rate into [1.0, 1.4]: the rate is
// clamped to [0, 0.1] before scaling.
func PerformanceWeight(engagementRate float64) float64 {
	r := engagementRate
	if r < 0 {
		r = 0
	}
	if r > 0.1 {
		r = 0.1
	}
	return 1.0 + r*4.0
}

func weightedMean(images []WeightedImage) []float32 {
	if len(images) == 0 {
		return nil
	}
	dim := len(images[0].Image.Embedding)
	acc := make([]float64, dim)
	var total float64
	for _, wi := range images {
		for i, x := range wi.Image.Embedding {
			acc[i] += float64(x) * wi.Weight
		}
		total += wi.Weight
	}
	if total == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i, x := range acc {
		out[i] = float32(x / total)
	}
	return out
}

func topExamples(images []WeightedImage, n int) []domain.AnchorExample {
	sorted := make([]WeightedImage, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]domain.AnchorExample, n)
	for i := 0; i < n; i++ {
		img := sorted[i].Image
		out[i] = domain.AnchorExample{
			ImageID:   img.ID,
			ImagePath: img.ImagePath,
			Username:  img.Username,
			Weight:    sorted[i].Weight,
		}
	}
	return out
}
