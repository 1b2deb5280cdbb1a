package feature

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DropMask is an environmental dropout mask over the visual feature
// dimensions. The same mask is applied to every view of every
// viewpoint in an episode, so that dropped channels describe a
// consistently altered environment. Kept channels are scaled by
// 1 / (1 - p) so that the expected feature value is unchanged.
//
// A nil DropMask keeps every channel unscaled.
type DropMask []float64

// NewDropMask samples a mask over dim channels, dropping each channel
// independently with probability p using the randomness source src.
func NewDropMask(dim int, p float64, src rand.Source) (DropMask, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("newDropMask: drop probability must be in "+
			"[0, 1), have(%v)", p)
	}
	mask := make(DropMask, dim)
	if p == 0 {
		for i := range mask {
			mask[i] = 1.0
		}
		return mask, nil
	}

	keep := distuv.Bernoulli{P: 1 - p, Src: src}
	scale := 1 / (1 - p)
	for i := range mask {
		mask[i] = keep.Rand() * scale
	}
	return mask, nil
}

// Dropped returns the number of channels removed by the mask.
func (d DropMask) Dropped() int {
	n := 0
	for _, v := range d {
		if v == 0 {
			n++
		}
	}
	return n
}

func (d DropMask) apply(visual []float64) {
	if len(d) != len(visual) {
		panic(fmt.Sprintf("apply: mask length %v does not match visual "+
			"features of length %v", len(d), len(visual)))
	}
	for i := range visual {
		visual[i] *= d[i]
	}
}
