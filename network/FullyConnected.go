package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Linear implements a fully connected layer y = act(Wx + b). Inputs
// may be single vectors, or matrices holding one input per row.
type Linear struct {
	weights string
	bias    string
	in, out int
	act     *Activation
}

// NewLinear adds the parameters of a fully connected layer to p. If
// bias is false, the layer has no bias.
func NewLinear(p *Params, name string, in, out int, bias bool,
	act *Activation, init G.InitWFn) (*Linear, error) {
	if act == nil {
		act = Identity()
	}
	l := &Linear{weights: name + ".W", in: in, out: out, act: act}

	if _, err := p.Add(l.weights, init, out, in); err != nil {
		return nil, fmt.Errorf("newLinear: %v", err)
	}
	if bias {
		l.bias = name + ".b"
		if _, err := p.Add(l.bias, G.Zeroes(), out); err != nil {
			return nil, fmt.Errorf("newLinear: %v", err)
		}
	}
	return l, nil
}

// In returns the input dimension of the layer
func (l *Linear) In() int {
	return l.in
}

// Out returns the output dimension of the layer
func (l *Linear) Out() int {
	return l.out
}

// Fwd adds the forward pass of the layer to the computational graph
func (l *Linear) Fwd(b *Bound, x *G.Node) (*G.Node, error) {
	w := b.Node(l.weights)

	var out *G.Node
	var err error
	switch {
	case x.IsVector():
		out, err = G.Mul(w, x)
		if err != nil {
			return nil, fmt.Errorf("fwd: %v", err)
		}
		if l.bias != "" {
			out, err = G.Add(out, b.Node(l.bias))
		}

	case x.IsMatrix():
		out, err = G.Mul(x, G.Must(G.Transpose(w)))
		if err != nil {
			return nil, fmt.Errorf("fwd: %v", err)
		}
		if l.bias != "" {
			// Broadcast the bias to all rows
			bias := G.Must(G.Reshape(b.Node(l.bias), []int{1, l.out}))
			out, err = G.BroadcastAdd(out, bias, nil, []byte{0})
		}

	default:
		return nil, fmt.Errorf("fwd: input must be a vector or matrix, "+
			"have shape %v", x.Shape())
	}
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return l.act.fwd(out)
}
