package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// MLP implements a multi-layered perceptron with a final linear layer
// of outputs output units.
type MLP struct {
	layers []Layer
}

// NewMLP adds the parameters of an MLP to p. The hidden layers have
// sizes hiddenSizes and activations activations.
func NewMLP(p *Params, name string, features, outputs int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn) (*MLP, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newMLP: invalid number of biases\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	// Add the final linear layer
	hiddenSizes = append(append([]int(nil), hiddenSizes...), outputs)
	biases = append(append([]bool(nil), biases...), true)
	activations = append(append([]*Activation(nil), activations...),
		Identity())

	m := &MLP{}
	in := features
	for i := range hiddenSizes {
		l, err := NewLinear(p, fmt.Sprintf("%s.l%d", name, i), in,
			hiddenSizes[i], biases[i], activations[i], init)
		if err != nil {
			return nil, fmt.Errorf("newMLP: %v", err)
		}
		m.layers = append(m.layers, l)
		in = hiddenSizes[i]
	}
	return m, nil
}

// Fwd adds the forward pass of the MLP to the graph
func (m *MLP) Fwd(b *Bound, x *G.Node) (*G.Node, error) {
	var err error
	for i, l := range m.layers {
		x, err = l.Fwd(b, x)
		if err != nil {
			return nil, fmt.Errorf("fwd: layer %d: %v", i, err)
		}
	}
	return x, nil
}
