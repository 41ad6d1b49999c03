// Package diversify implements Maximal Marginal Relevance selection: picking
// K images from a candidate pool that stay close to the anchor while keeping
// a minimum pairwise distance from each other.
package diversify

import (
	"curator/internal/domain"
	"curator/internal/vecmath"
)

// Diversifier holds the MMR parameters.
type Diversifier struct {
	lambda              float64
	minPairwiseDistance float64
	maxAnchorDistance   float64
}

// Defaults for the MMR parameters.
const (
	DefaultLambda              = 0.7
	DefaultMinPairwiseDistance = 0.12
	DefaultMaxAnchorDistance   = 0.25
)

// New creates a Diversifier. Non-positive parameters fall back to the
// defaults.
func New(lambda, minPairwiseDistance, maxAnchorDistance float64) *Diversifier {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	if minPairwiseDistance <= 0 {
		minPairwiseDistance = DefaultMinPairwiseDistance
	}
	if maxAnchorDistance <= 0 {
		maxAnchorDistance = DefaultMaxAnchorDistance
	}
	return &Diversifier{
		lambda:              lambda,
		minPairwiseDistance: minPairwiseDistance,
		maxAnchorDistance:   maxAnchorDistance,
	}
}

type candidate struct {
	image      domain.ImageRecord
	normalized []float32
	anchorDist float64
}

// Select picks exactly k images from pool, skipping ids in exclude.
//
// MMR(c) = λ * (1 - anchorDist(c)) - (1-λ) * maxSim(c, selected)
//
// A pick whose distance to any already-selected image falls below the
// pairwise minimum is discarded and not returned to the pool. Returns
// *domain.InsufficientCandidatesError when fewer than k candidates survive
// the anchor-distance cut, and *domain.DiversityError when the pairwise
// constraint leaves fewer than k selected. The greedy loop is an
// O(k * poolSize) approximation; it never backtracks.
func (d *Diversifier) Select(anchor []float32, pool []domain.ImageRecord, k int, exclude map[string]struct{}) ([]domain.Candidate, error) {
	remaining := make([]candidate, 0, len(pool))
	for _, img := range pool {
		if len(img.Embedding) == 0 {
			continue
		}
		if _, skip := exclude[img.ID]; skip {
			continue
		}
		norm := vecmath.Normalize(img.Embedding)
		dist := vecmath.CosineDistance(norm, anchor)
		if dist > d.maxAnchorDistance {
			continue
		}
		remaining = append(remaining, candidate{image: img, normalized: norm, anchorDist: dist})
	}

	if len(remaining) < k {
		return nil, &domain.InsufficientCandidatesError{Have: len(remaining), Need: k}
	}

	selected := make([]candidate, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, c := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				sim := vecmath.CosineSimilarity(c.normalized, s.normalized)
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := d.lambda*(1-c.anchorDist) - (1-d.lambda)*maxSim
			if bestIdx == -1 || score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		pick := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		ok := true
		for _, s := range selected {
			if vecmath.CosineDistance(pick.normalized, s.normalized) < d.minPairwiseDistance {
				ok = false
				break
			}
		}
		if ok {
			selected = append(selected, pick)
		}
	}

	if len(selected) < k {
		return nil, &domain.DiversityError{Have: len(selected), Need: k}
	}

	out := make([]domain.Candidate, len(selected))
	for i, s := range selected {
		out[i] = domain.Candidate{Image: s.image, AnchorDistance: s.anchorDist}
	}
	return out, nil
}

// MinPairwiseDistance returns the configured pairwise floor.
func (d *Diversifier) MinPairwiseDistance() float64 { return d.minPairwiseDistance }

// MaxAnchorDistance returns the configured anchor-distance ceiling.
func (d *Diversifier) MaxAnchorDistance() float64 { return d.maxAnchorDistance }
