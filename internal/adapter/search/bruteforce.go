// Package search provides nearest-neighbor backends over the image corpus.
package search

import (
	"context"
	"sort"

	"curator/internal/domain"
	"curator/internal/port"
	"curator/internal/vecmath"
)

// Corpus is the slice of the library the brute-force backend scans.
type Corpus interface {
	ImagesWithEmbeddings(ctx context.Context, limit int) ([]domain.ImageRecord, error)
}

// BruteForce is an exact cosine scan. Fine up to tens of thousands of
// images; swap in the sqlite-vec backend beyond that.
type BruteForce struct {
	corpus Corpus
	limit  int
}

// NewBruteForce creates a brute-force search over corpus. limit caps how
// many images one scan loads; 0 means no cap.
func NewBruteForce(corpus Corpus, limit int) *BruteForce {
	return &BruteForce{corpus: corpus, limit: limit}
}

// Nearest returns up to k images closest to vector by cosine similarity.
func (s *BruteForce) Nearest(ctx context.Context, vector []float32, k int, opts port.NeighborOptions) ([]domain.ImageRecord, error) {
	images, err := s.corpus.ImagesWithEmbeddings(ctx, s.limit)
	if err != nil {
		return nil, &domain.RetrievalError{Cause: err}
	}

	var allow map[string]struct{}
	if len(opts.Usernames) > 0 {
		allow = make(map[string]struct{}, len(opts.Usernames))
		for _, u := range opts.Usernames {
			allow[domain.CanonicalUsername(u)] = struct{}{}
		}
	}

	type scored struct {
		img domain.ImageRecord
		sim float64
	}
	scores := make([]scored, 0, len(images))
	for _, img := range images {
		if !opts.IncludeCovers && img.IsCover() {
			continue
		}
		if allow != nil {
			if _, ok := allow[img.Username]; !ok {
				continue
			}
		}
		scores = append(scores, scored{img: img, sim: vecmath.CosineSimilarity(vector, img.Embedding)})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].sim > scores[j].sim
	})
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]domain.ImageRecord, k)
	for i := 0; i < k; i++ {
		out[i] = scores[i].img
	}
	return out, nil
}
