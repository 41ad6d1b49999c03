// Package library is the BoltDB-backed post/image corpus. It ports the
// source system's relational queries (posts by username set and window,
// images by post, corpus-wide cover slides) onto bucket scans.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"curator/internal/domain"
)

var (
	bucketPosts      = []byte("posts")
	bucketImages     = []byte("images")
	bucketSelections = []byte("selections")
)

// BoltLibrary stores posts, images and selection logs in one bbolt file.
type BoltLibrary struct {
	db *bbolt.DB
}

type postRow struct {
	Username       string  `json:"username"`
	EngagementRate float64 `json:"engagement_rate"`
	CreatedAt      int64   `json:"created_at"`
}

type imageRow struct {
	PostID          string    `json:"post_id"`
	Username        string    `json:"username"`
	ImagePath       string    `json:"image_path,omitempty"`
	Embedding       []float32 `json:"embedding,omitempty"`
	IsCoverSlide    bool      `json:"is_cover_slide,omitempty"`
	CoverSlideText  string    `json:"cover_slide_text,omitempty"`
	UniformityScore float64   `json:"uniformity_score,omitempty"`
	Aesthetic       string    `json:"aesthetic,omitempty"`
	Colors          []string  `json:"colors,omitempty"`
	Season          string    `json:"season,omitempty"`
	CreatedAt       int64     `json:"created_at"`
}

type selectionRow struct {
	Account   string   `json:"account"`
	ImageIDs  []string `json:"image_ids"`
	CreatedAt int64    `json:"created_at"`
}

// NewBoltLibrary opens (or creates) the library database at path.
func NewBoltLibrary(path string) (*BoltLibrary, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open library db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPosts, bucketImages, bucketSelections} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltLibrary{db: db}, nil
}

// PutPost inserts or replaces a post.
func (l *BoltLibrary) PutPost(p domain.PostRecord) error {
	row := postRow{
		Username:       domain.CanonicalUsername(p.Username),
		EngagementRate: p.EngagementRate,
		CreatedAt:      p.CreatedAt.Unix(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).Put([]byte(p.PostID), data)
	})
}

// PutImage inserts or replaces an image.
func (l *BoltLibrary) PutImage(img domain.ImageRecord) error {
	row := imageRow{
		PostID:          img.PostID,
		Username:        domain.CanonicalUsername(img.Username),
		ImagePath:       img.ImagePath,
		Embedding:       img.Embedding,
		IsCoverSlide:    img.IsCoverSlide,
		CoverSlideText:  img.CoverSlideText,
		UniformityScore: img.UniformityScore,
		Aesthetic:       img.Aesthetic,
		Colors:          img.Colors,
		Season:          img.Season,
		CreatedAt:       img.CreatedAt.Unix(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketImages).Put([]byte(img.ID), data)
	})
}

// PostsByUsernames returns posts owned by the given canonical usernames
// created at or after since, ordered by engagement rate descending and
// capped at limit.
func (l *BoltLibrary) PostsByUsernames(ctx context.Context, usernames []string, since time.Time, limit int) ([]domain.PostRecord, error) {
	want := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		want[domain.CanonicalUsername(u)] = struct{}{}
	}
	var posts []domain.PostRecord
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).ForEach(func(k, v []byte) error {
			var row postRow
			if err := json.Unmarshal(v, &row); err != nil {
				return nil
			}
			if _, ok := want[row.Username]; !ok {
				return nil
			}
			created := time.Unix(row.CreatedAt, 0).UTC()
			if created.Before(since) {
				return nil
			}
			posts = append(posts, domain.PostRecord{
				PostID:         string(k),
				Username:       row.Username,
				EngagementRate: row.EngagementRate,
				CreatedAt:      created,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].EngagementRate > posts[j].EngagementRate
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// ImagesByPosts returns embedded images belonging to the given posts,
// capped at limit.
func (l *BoltLibrary) ImagesByPosts(ctx context.Context, postIDs []string, limit int) ([]domain.ImageRecord, error) {
	want := make(map[string]struct{}, len(postIDs))
	for _, id := range postIDs {
		want[id] = struct{}{}
	}
	return l.scanImages(limit, func(img domain.ImageRecord) bool {
		if len(img.Embedding) == 0 {
			return false
		}
		_, ok := want[img.PostID]
		return ok
	})
}

// CoverImages returns embedded cover/text-slide images across the whole
// corpus created at or after since, capped at limit.
func (l *BoltLibrary) CoverImages(ctx context.Context, since time.Time, limit int) ([]domain.ImageRecord, error) {
	return l.scanImages(limit, func(img domain.ImageRecord) bool {
		return len(img.Embedding) > 0 && img.IsCover() && !img.CreatedAt.Before(since)
	})
}

// ImagesWithEmbeddings returns every image carrying an embedding, capped at
// limit. The brute-force neighbor search scans this set.
func (l *BoltLibrary) ImagesWithEmbeddings(ctx context.Context, limit int) ([]domain.ImageRecord, error) {
	return l.scanImages(limit, func(img domain.ImageRecord) bool {
		return len(img.Embedding) > 0
	})
}

func (l *BoltLibrary) scanImages(limit int, keep func(domain.ImageRecord) bool) ([]domain.ImageRecord, error) {
	var images []domain.ImageRecord
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketImages).ForEach(func(k, v []byte) error {
			if limit > 0 && len(images) >= limit {
				return nil
			}
			var row imageRow
			if err := json.Unmarshal(v, &row); err != nil {
				return nil
			}
			img := domain.ImageRecord{
				ID:              string(k),
				PostID:          row.PostID,
				Username:        row.Username,
				ImagePath:       row.ImagePath,
				Embedding:       row.Embedding,
				IsCoverSlide:    row.IsCoverSlide,
				CoverSlideText:  row.CoverSlideText,
				UniformityScore: row.UniformityScore,
				Aesthetic:       row.Aesthetic,
				Colors:          row.Colors,
				Season:          row.Season,
				CreatedAt:       time.Unix(row.CreatedAt, 0).UTC(),
			}
			if keep(img) {
				images = append(images, img)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// RecordSelection logs a finished selection under its run id.
func (l *BoltLibrary) RecordSelection(ctx context.Context, sel domain.Selection) error {
	ids := make([]string, len(sel.Picks))
	for i, p := range sel.Picks {
		ids[i] = p.Image.ID
	}
	row := selectionRow{
		Account:   domain.CanonicalUsername(sel.Account),
		ImageIDs:  ids,
		CreatedAt: time.Now().Unix(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSelections).Put([]byte(sel.RunID), data)
	})
}

// RecentSelectionIDs returns image ids used in any selection recorded at or
// after since, across all accounts.
func (l *BoltLibrary) RecentSelectionIDs(ctx context.Context, since time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSelections).ForEach(func(k, v []byte) error {
			var row selectionRow
			if err := json.Unmarshal(v, &row); err != nil {
				return nil
			}
			if time.Unix(row.CreatedAt, 0).Before(since) {
				return nil
			}
			for _, id := range row.ImageIDs {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close closes the underlying database.
func (l *BoltLibrary) Close() error {
	return l.db.Close()
}
