package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// LSTMCell implements a single step of a long short-term memory cell
// with input, forget, cell and output gates computed by one affine map
// of the concatenated input and hidden state.
type LSTMCell struct {
	weights string
	bias    string
	in      int
	hidden  int
}

// NewLSTMCell adds the parameters of an LSTM cell to p. The hidden size
// must be at least 2.
func NewLSTMCell(p *Params, name string, in, hidden int,
	init G.InitWFn) (*LSTMCell, error) {
	if hidden < 2 {
		return nil, fmt.Errorf("newLSTMCell: hidden size must be at least "+
			"2, have(%v)", hidden)
	}
	c := &LSTMCell{
		weights: name + ".W",
		bias:    name + ".b",
		in:      in,
		hidden:  hidden,
	}
	if _, err := p.Add(c.weights, init, 4*hidden, in+hidden); err != nil {
		return nil, fmt.Errorf("newLSTMCell: %v", err)
	}

	// Forget gates start open
	bias, err := p.Add(c.bias, G.Zeroes(), 4*hidden)
	if err != nil {
		return nil, fmt.Errorf("newLSTMCell: %v", err)
	}
	data := bias.Data().([]float64)
	for i := hidden; i < 2*hidden; i++ {
		data[i] = 1.0
	}
	return c, nil
}

// Hidden returns the size of the hidden and cell states
func (c *LSTMCell) Hidden() int {
	return c.hidden
}

// In returns the input size
func (c *LSTMCell) In() int {
	return c.in
}

// Fwd adds a single step of the cell to the graph, returning the next
// hidden and cell states
func (c *LSTMCell) Fwd(b *Bound, x, h, cell *G.Node) (*G.Node, *G.Node,
	error) {
	if x.Shape().TotalSize() != c.in {
		return nil, nil, fmt.Errorf("fwd: expected input of size %v, "+
			"have shape %v", c.in, x.Shape())
	}
	xh, err := G.Concat(0, x, h)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v", err)
	}
	gates, err := G.Mul(b.Node(c.weights), xh)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v", err)
	}
	gates = G.Must(G.Add(gates, b.Node(c.bias)))

	H := c.hidden
	input := G.Must(G.Sigmoid(G.Must(G.Slice(gates, G.S(0, H)))))
	forget := G.Must(G.Sigmoid(G.Must(G.Slice(gates, G.S(H, 2*H)))))
	candidate := G.Must(G.Tanh(G.Must(G.Slice(gates, G.S(2*H, 3*H)))))
	output := G.Must(G.Sigmoid(G.Must(G.Slice(gates, G.S(3*H, 4*H)))))

	nextCell := G.Must(G.Add(
		G.Must(G.HadamardProd(forget, cell)),
		G.Must(G.HadamardProd(input, candidate)),
	))
	nextH := G.Must(G.HadamardProd(output, G.Must(G.Tanh(nextCell))))
	return nextH, nextCell, nil
}
