// Benchmark for the diversifier: generates a synthetic candidate pool of
// clustered unit vectors around an anchor and measures selection quality
// and timing at several pool sizes.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"curator/internal/diversify"
	"curator/internal/domain"
	"curator/internal/vecmath"
)

func main() {
	dim := flag.Int("dim", 768, "Embedding dimension")
	k := flag.Int("k", 10, "Images to select")
	seed := flag.Int64("seed", 42, "RNG seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	anchor := randomUnit(rng, *dim)

	fmt.Printf("Diversifier benchmark (dim=%d, k=%d)\n\n", *dim, *k)
	fmt.Printf("%-10s %-10s %-12s %-12s %-12s\n", "pool", "time", "minPair", "avgAnchor", "maxAnchor")

	for _, poolSize := range []int{200, 500, 1000, 2000} {
		pool := make([]domain.ImageRecord, poolSize)
		for i := range pool {
			// Perturb the anchor so most candidates land inside the
			// default anchor-distance ceiling.
			pool[i] = domain.ImageRecord{
				ID:        fmt.Sprintf("img-%d", i),
				Embedding: perturb(rng, anchor, 0.35),
			}
		}

		div := diversify.New(0, 0, 0) // defaults
		start := time.Now()
		picks, err := div.Select(anchor, pool, *k, nil)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("%-10d selection failed: %v\n", poolSize, err)
			continue
		}

		minPair := math.Inf(1)
		var sumDist, maxDist float64
		norms := make([][]float32, len(picks))
		for i, p := range picks {
			norms[i] = vecmath.Normalize(p.Image.Embedding)
			sumDist += p.AnchorDistance
			if p.AnchorDistance > maxDist {
				maxDist = p.AnchorDistance
			}
		}
		for i := range norms {
			for j := i + 1; j < len(norms); j++ {
				if d := vecmath.CosineDistance(norms[i], norms[j]); d < minPair {
					minPair = d
				}
			}
		}

		fmt.Printf("%-10d %-10s %-12.4f %-12.4f %-12.4f\n",
			poolSize, elapsed.Round(time.Microsecond), minPair, sumDist/float64(len(picks)), maxDist)
	}
	os.Exit(0)
}

func randomUnit(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return vecmath.Normalize(v)
}

// perturb mixes gaussian noise into base; scale controls how far candidates
// drift from it.
func perturb(rng *rand.Rand, base []float32, scale float64) []float32 {
	v := make([]float32, len(base))
	for i := range v {
		v[i] = base[i] + float32(rng.NormFloat64()*scale/math.Sqrt(float64(len(base))))
	}
	return vecmath.Normalize(v)
}
