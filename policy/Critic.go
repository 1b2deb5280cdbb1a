package policy

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/utils/op"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// Critic estimates the value of the instruction-attended hidden state
// of a Listener
type Critic struct {
	config Config
	params *network.Params
	mlp    *network.MLP
}

// NewCritic returns a new Critic for Listeners of configuration c
func NewCritic(c Config) (*Critic, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newCritic: %v", err)
	}

	p := network.NewParams()
	init := c.Init.InitWFn(rand.NewSource(c.Seed + 1))
	mlp, err := network.NewMLP(p, "critic", c.Hidden, 1,
		[]int{c.CriticHidden}, []bool{true},
		[]*network.Activation{network.ReLU()}, init)
	if err != nil {
		return nil, fmt.Errorf("newCritic: %v", err)
	}
	return &Critic{config: c, params: p, mlp: mlp}, nil
}

// Params returns the learnable parameters of the Critic
func (c *Critic) Params() *network.Params {
	return c.params
}

// Fwd adds the value of the hidden state h to the graph as a scalar
func (c *Critic) Fwd(b *network.Bound, h *G.Node) (*G.Node, error) {
	v, err := c.mlp.Fwd(b, h)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return op.At(v, 0), nil
}

// Values returns the values of a batch of hidden states
func (c *Critic) Values(hidden [][]float64) ([]float64, error) {
	if len(hidden) == 0 {
		return nil, nil
	}
	dim := c.config.Hidden
	backing := make([]float64, 0, len(hidden)*dim)
	for i, h := range hidden {
		if len(h) != dim {
			return nil, fmt.Errorf("values: hidden state %v has length %v, "+
				"want(%v)", i, len(h), dim)
		}
		backing = append(backing, h...)
	}

	g := network.NewGraph()
	b := g.Bind(c.params)
	out, err := c.mlp.Fwd(b, g.Matrix("hidden", len(hidden), dim, backing))
	if err != nil {
		return nil, fmt.Errorf("values: %v", err)
	}
	flat, err := G.Reshape(out, []int{len(hidden)})
	if err != nil {
		return nil, fmt.Errorf("values: %v", err)
	}
	v := g.Read(flat)
	if err := g.Run(); err != nil {
		return nil, fmt.Errorf("values: %v", err)
	}
	return network.Floats(*v), nil
}

// GobEncode implements the gob.GobEncoder interface
func (c *Critic) GobEncode() ([]byte, error) {
	config, err := c.config.encode()
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobListener{Config: config, Params: c.params}); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (c *Critic) GobDecode(in []byte) error {
	var s gobListener
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&s); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	config, err := decodeConfig(s.Config)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	restored, err := NewCritic(config)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := restored.params.Set(s.Params); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	*c = *restored
	return nil
}
