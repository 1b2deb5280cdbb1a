package solver

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// RMSPropConfig implements a specific configuration of the RMSProp
// solver
type RMSPropConfig struct {
	StepSize float64
	Epsilon  float64
	Rho      float64 // Decay of the squared gradient average
	Batch    int
	Clip     float64 // Max global gradient norm, <= 0 if no clipping
}

// NewDefaultRMSProp returns a new RMSProp Solver with default
// hyperparameters
func NewDefaultRMSProp(stepSize float64, batchSize int) (*Solver, error) {
	return NewRMSProp(stepSize, 1e-8, 0.999, batchSize, -1.0)
}

// NewRMSProp returns a new RMSProp Solver
func NewRMSProp(stepSize, epsilon, rho float64, batchSize int,
	clip float64) (*Solver, error) {
	rmsprop := RMSPropConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Rho:      rho,
		Batch:    int(batchSize),
		Clip:     clip,
	}

	return newSolver(RMSProp, rmsprop)
}

// Create returns a new RMSProp Solver as described by the
// RMSPropConfig
func (r RMSPropConfig) Create() G.Solver {
	return &RMSPropSolver{Config: r}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (r RMSPropConfig) ValidType(t Type) bool {
	return t == RMSProp
}

// RMSPropSolver implements the RMSProp algorithm
type RMSPropSolver struct {
	Config RMSPropConfig
	Cache  [][]float64
}

// Step implements the G.Solver interface
func (r *RMSPropSolver) Step(model []G.ValueGrad) error {
	weights, grads, err := gradients(model, r.Config.Batch, r.Config.Clip)
	if err != nil {
		return err
	}
	if r.Cache, err = moments(r.Cache, weights); err != nil {
		return err
	}

	c := r.Config
	for i, w := range weights {
		cache, g := r.Cache[i], grads[i]
		for j := range w {
			cache[j] = c.Rho*cache[j] + (1-c.Rho)*g[j]*g[j]
			w[j] -= c.StepSize * g[j] / math.Sqrt(cache[j]+c.Epsilon)
		}
	}
	return nil
}
