package solver

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Batch    int
	Clip     float64 // Max global gradient norm, <= 0 if no clipping
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize, -1.0)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int,
	clip float64) (*Solver, error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    int(batchSize),
		Clip:     clip,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam Solver as described by the AdamConfig
func (a AdamConfig) Create() G.Solver {
	return &AdamSolver{Config: a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// AdamSolver implements the Adam algorithm. All state is exported so
// that it can be checkpointed.
type AdamSolver struct {
	Config AdamConfig
	T      int
	M, V   [][]float64
}

// Step implements the G.Solver interface
func (a *AdamSolver) Step(model []G.ValueGrad) error {
	weights, grads, err := gradients(model, a.Config.Batch, a.Config.Clip)
	if err != nil {
		return err
	}
	if a.M, err = moments(a.M, weights); err != nil {
		return err
	}
	if a.V, err = moments(a.V, weights); err != nil {
		return err
	}

	a.T++
	c := a.Config
	correct1 := 1 - math.Pow(c.Beta1, float64(a.T))
	correct2 := 1 - math.Pow(c.Beta2, float64(a.T))
	for i, w := range weights {
		m, v, g := a.M[i], a.V[i], grads[i]
		for j := range w {
			m[j] = c.Beta1*m[j] + (1-c.Beta1)*g[j]
			v[j] = c.Beta2*v[j] + (1-c.Beta2)*g[j]*g[j]
			mHat := m[j] / correct1
			vHat := v[j] / correct2
			w[j] -= c.StepSize * mHat / (math.Sqrt(vHat) + c.Epsilon)
		}
	}
	return nil
}
