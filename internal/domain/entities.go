package domain

import (
	"strings"
	"time"
)

// ImageRecord is one ingested image. Embeddings are produced upstream and
// treated as opaque; a record without an embedding takes no part in anchor
// or selection math.
type ImageRecord struct {
	ID              string
	PostID          string
	Username        string
	ImagePath       string
	Embedding       []float32
	IsCoverSlide    bool
	CoverSlideText  string
	UniformityScore float64
	Aesthetic       string
	Colors          []string
	Season          string
	CreatedAt       time.Time
}

// IsCover reports whether the image is a cover/text slide by its explicit
// flags alone. The uniformity and centroid heuristics live in the anchor
// builder's filter ladder.
func (r ImageRecord) IsCover() bool {
	return r.IsCoverSlide || r.CoverSlideText != ""
}

// PostRecord carries the per-post signals used to weight its images.
type PostRecord struct {
	PostID         string
	Username       string
	EngagementRate float64
	CreatedAt      time.Time
}

// Anchor is the unit-normalized centroid vector representing an account's
// target aesthetic, plus build provenance.
type Anchor struct {
	Vector  []float32
	BuiltAt time.Time
	Stats   BuildStats
}

// Filter tiers recorded in BuildStats. Strict applies every cover heuristic;
// relaxed drops only explicitly flagged covers; raw means nothing survived
// filtering and the anchor quality is degraded.
const (
	FilterTierStrict  = "strict"
	FilterTierRelaxed = "relaxed"
	FilterTierRaw     = "raw"
)

// BuildStats is the provenance of one anchor build.
type BuildStats struct {
	Inspo          []string        `json:"inspo"`
	WindowDays     int             `json:"window_days"`
	PostsFound     int             `json:"posts_found"`
	RawImages      int             `json:"raw_images"`
	Candidates     int             `json:"candidates"`
	FilterTier     string          `json:"filter_tier"`
	CoverCentroid  bool            `json:"cover_centroid"`
	AnchorExamples []AnchorExample `json:"anchor_examples,omitempty"`
}

// AnchorExample is one of the top-weighted images that formed the anchor,
// kept for preview and diagnostics.
type AnchorExample struct {
	ImageID   string  `json:"image_id"`
	ImagePath string  `json:"image_path"`
	Username  string  `json:"username"`
	Weight    float64 `json:"weight"`
}

// Candidate is an image annotated with its distance to the anchor
// (1 - cosine similarity).
type Candidate struct {
	Image          ImageRecord
	AnchorDistance float64
}

// Selection is the result of one diversified pick: the chosen images in
// selection order, most anchor-faithful first.
type Selection struct {
	RunID   string
	Account string
	Picks   []Candidate
	Stats   SelectionStats
}

// SelectionStats are diagnostic figures about one selection run.
type SelectionStats struct {
	PoolSize        int     `json:"pool_size"`
	Excluded        int     `json:"excluded"`
	MinAnchorDist   float64 `json:"min_anchor_dist"`
	AvgAnchorDist   float64 `json:"avg_anchor_dist"`
	MaxAnchorDist   float64 `json:"max_anchor_dist"`
	MinPairwiseDist float64 `json:"min_pairwise_dist"`
	GateApplied     bool    `json:"gate_applied"`
}

// InspectReport is a read-only diagnostic snapshot of an account's
// selection inputs. Producing it never mutates the anchor cache.
type InspectReport struct {
	Account       string      `json:"account"`
	WindowDays    int         `json:"window_days"`
	InspoResolved []string    `json:"inspo_resolved"`
	PostsFound    int         `json:"posts_found"`
	ImagesFound   int         `json:"images_found"`
	AnchorCached  bool        `json:"anchor_cached"`
	AnchorBuiltAt *time.Time  `json:"anchor_built_at,omitempty"`
	AnchorStats   *BuildStats `json:"anchor_stats,omitempty"`
}

// CanonicalUsername maps the outside spellings of a handle ("name", "@Name")
// to one identity.
func CanonicalUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}

// CanonicalUsernames canonicalizes a list, dropping empties and duplicates
// while preserving first-seen order.
func CanonicalUsernames(us []string) []string {
	seen := make(map[string]struct{}, len(us))
	out := make([]string, 0, len(us))
	for _, u := range us {
		c := CanonicalUsername(u)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
