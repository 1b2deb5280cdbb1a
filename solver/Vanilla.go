package solver

import G "gorgonia.org/gorgonia"

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // Max global gradient norm, <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	vanilla := VanillaConfig{
		StepSize: stepSize,
		Batch:    int(batchSize),
		Clip:     clip,
	}

	return newSolver(Vanilla, vanilla)
}

// Create returns a Vanilla Solver as described by the VanillaConfig
func (v VanillaConfig) Create() G.Solver {
	return &VanillaSolver{Config: v}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// VanillaSolver implements stochastic gradient descent
type VanillaSolver struct {
	Config VanillaConfig
	Steps  int
}

// Step implements the G.Solver interface
func (v *VanillaSolver) Step(model []G.ValueGrad) error {
	weights, grads, err := gradients(model, v.Config.Batch, v.Config.Clip)
	if err != nil {
		return err
	}
	for i, w := range weights {
		for j := range w {
			w[j] -= v.Config.StepSize * grads[i][j]
		}
	}
	v.Steps++
	return nil
}
