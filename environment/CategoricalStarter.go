package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Starter samples the starting positions of episodes
type Starter interface {
	Start() EpisodeSpec
}

// CategoricalStarter samples starting positions from a fixed set of
// candidate starts, each weighted by a non-negative weight
type CategoricalStarter struct {
	starts []EpisodeSpec
	rand   distuv.Categorical
}

// NewCategoricalStarter returns a new CategoricalStarter. If weights is
// nil, starts are sampled uniformly.
func NewCategoricalStarter(starts []EpisodeSpec, weights []float64,
	src rand.Source) (*CategoricalStarter, error) {
	if len(starts) == 0 {
		return nil, fmt.Errorf("newCategoricalStarter: no starts given")
	}
	if weights == nil {
		weights = make([]float64, len(starts))
		for i := range weights {
			weights[i] = 1.0 / float64(len(weights))
		}
	}
	if len(weights) != len(starts) {
		return nil, fmt.Errorf("newCategoricalStarter: %v weights for %v "+
			"starts", len(weights), len(starts))
	}

	return &CategoricalStarter{
		starts: append([]EpisodeSpec(nil), starts...),
		rand:   distuv.NewCategorical(weights, src),
	}, nil
}

// Start implements the Starter interface
func (c *CategoricalStarter) Start() EpisodeSpec {
	return c.starts[int(c.rand.Rand())]
}
