package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Embedding maps token ids to learned vectors
type Embedding struct {
	weights string
	vocab   int
	dim     int
}

// NewEmbedding adds a vocab x dim embedding table to p
func NewEmbedding(p *Params, name string, vocab, dim int,
	init G.InitWFn) (*Embedding, error) {
	e := &Embedding{weights: name + ".E", vocab: vocab, dim: dim}
	if _, err := p.Add(e.weights, init, vocab, dim); err != nil {
		return nil, fmt.Errorf("newEmbedding: %v", err)
	}
	return e, nil
}

// Dim returns the dimension of embedded vectors
func (e *Embedding) Dim() int {
	return e.dim
}

// Fwd adds the lookup of a single token to the graph
func (e *Embedding) Fwd(b *Bound, token int) (*G.Node, error) {
	if token < 0 || token >= e.vocab {
		return nil, fmt.Errorf("fwd: token %v out of range [0, %v)", token,
			e.vocab)
	}
	return G.Slice(b.Node(e.weights), G.S(token))
}
