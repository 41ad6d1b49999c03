package port

import (
	"context"

	"curator/internal/domain"
)

// NeighborOptions restrict a nearest-neighbor query.
type NeighborOptions struct {
	// IncludeCovers keeps cover/text slides in the result set. Selection
	// always excludes them.
	IncludeCovers bool

	// Usernames, when non-empty, restricts results to images owned by these
	// canonical usernames.
	Usernames []string
}

// NeighborSearch is the external nearest-neighbor capability over the full
// embedding corpus. Implementations wrap backend failures in
// *domain.RetrievalError; an empty result is a valid "no neighbors" answer,
// never an error.
type NeighborSearch interface {
	Nearest(ctx context.Context, vector []float32, k int, opts NeighborOptions) ([]domain.ImageRecord, error)
}

// ContentGate is an optional external validity check per image. Errors are
// surfaced to the caller, which applies fail-open policy; implementations
// never swallow them.
type ContentGate interface {
	Validate(ctx context.Context, img domain.ImageRecord) (bool, error)
}
