package port

import (
	"context"
	"time"

	"curator/internal/domain"
)

// Library is the post/image corpus this subsystem reads from. Usernames are
// canonical (lowercase, no leading "@") at this boundary.
type Library interface {
	// PostsByUsernames returns posts owned by any of the usernames created
	// at or after since, ordered by engagement rate descending, capped at
	// limit rows.
	PostsByUsernames(ctx context.Context, usernames []string, since time.Time, limit int) ([]domain.PostRecord, error)

	// ImagesByPosts returns images belonging to the given posts that carry
	// an embedding, capped at limit rows.
	ImagesByPosts(ctx context.Context, postIDs []string, limit int) ([]domain.ImageRecord, error)

	// CoverImages returns cover/text-slide images with embeddings across the
	// whole corpus created at or after since, capped at limit rows.
	CoverImages(ctx context.Context, since time.Time, limit int) ([]domain.ImageRecord, error)

	// RecordSelection logs a finished selection so its images can be held
	// out of later runs for a cooldown window.
	RecordSelection(ctx context.Context, sel domain.Selection) error

	// RecentSelectionIDs returns ids of images used by any account in
	// selections recorded at or after since.
	RecentSelectionIDs(ctx context.Context, since time.Time) ([]string, error)
}

// AnchorStore caches one anchor per account key. It has no TTL or
// invalidation; staleness is a caller concern.
type AnchorStore interface {
	// Load returns the cached anchor, or nil with no error on a miss.
	Load(ctx context.Context, accountKey string) (*domain.Anchor, error)

	// Save overwrites any previous value unconditionally. Saving a nil
	// anchor is a no-op.
	Save(ctx context.Context, accountKey string, anchor *domain.Anchor) error
}
