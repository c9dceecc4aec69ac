// Package quantize maps pixel colors onto the nearest candidate block.
package quantize

import (
	"golang.org/x/sync/errgroup"

	"pixelcraft.ai/internal/blocks"
)

// Candidate is a source palette entry with its color resolved once.
type Candidate struct {
	Index   int // position in the source palette
	R, G, B int
}

// Prepare resolves the colors of a source palette. The alpha channel of a
// candidate plays no part in matching.
func Prepare(specs []blocks.BlockSpec) ([]Candidate, error) {
	out := make([]Candidate, 0, len(specs))
	for i, s := range specs {
		c, err := s.Color()
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Index: i, R: int(c.R), G: int(c.G), B: int(c.B)})
	}
	return out, nil
}

// Nearest returns the position in cands of the candidate closest to c by
// Euclidean RGB distance. Ties keep the earliest candidate.
func Nearest(c blocks.Color, cands []Candidate) (int, error) {
	if len(cands) == 0 {
		return -1, blocks.InvalidInput("nearest: empty candidate list")
	}
	r, g, b := int(c.R), int(c.G), int(c.B)
	best, bestDist := 0, -1
	for i, k := range cands {
		dr, dg, db := r-k.R, g-k.G, b-k.B
		// Squared distance preserves the argmin.
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}

// NearestSpec is Nearest over an unprepared source palette.
func NearestSpec(c blocks.Color, specs []blocks.BlockSpec) (blocks.BlockSpec, error) {
	cands, err := Prepare(specs)
	if err != nil {
		return blocks.BlockSpec{}, err
	}
	i, err := Nearest(c, cands)
	if err != nil {
		return blocks.BlockSpec{}, err
	}
	return specs[cands[i].Index], nil
}

// NearestAll matches every color in colors and returns the winning candidate
// positions in the same order. Work is split across up to workers goroutines;
// the result does not depend on the worker count.
func NearestAll(colors []blocks.Color, cands []Candidate, workers int) ([]int, error) {
	out := make([]int, len(colors))
	if len(colors) == 0 {
		return out, nil
	}
	if len(cands) == 0 {
		return nil, blocks.InvalidInput("nearest: empty candidate list")
	}
	if workers <= 1 || len(colors) < 2*workers {
		for i, c := range colors {
			out[i], _ = Nearest(c, cands)
		}
		return out, nil
	}

	step := (len(colors) + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < len(colors); lo += step {
		lo, hi := lo, min(lo+step, len(colors))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				w, err := Nearest(colors[i], cands)
				if err != nil {
					return err
				}
				out[i] = w
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
