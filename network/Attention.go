package network

import (
	"fmt"

	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
)

// Attention implements soft dot-product attention of a query vector
// over the rows of a context matrix. The query is projected into the
// context space, scored against every context row, and the resulting
// distribution weights the context rows.
//
// If the attention has an output projection, its output is
// tanh(W[weighted context; query]), otherwise it is the weighted
// context itself.
type Attention struct {
	in     string
	out    string
	query  int
	ctx    int
	output int
}

// NewAttention adds the parameters of an attention layer to p. If
// output is positive, an output projection to output dimensions is
// added.
func NewAttention(p *Params, name string, query, ctx, output int,
	init G.InitWFn) (*Attention, error) {
	a := &Attention{in: name + ".in", query: query, ctx: ctx}
	if _, err := p.Add(a.in, init, ctx, query); err != nil {
		return nil, fmt.Errorf("newAttention: %v", err)
	}
	if output > 0 {
		a.out = name + ".out"
		a.output = output
		if _, err := p.Add(a.out, init, output, ctx+query); err != nil {
			return nil, fmt.Errorf("newAttention: %v", err)
		}
	}
	return a, nil
}

// AttentionOutput holds the nodes computed by an attention layer
type AttentionOutput struct {
	Output  *G.Node // Projected or weighted context
	Weights *G.Node // Attention distribution over context rows
	Logits  *G.Node // Unnormalized attention scores
}

// Fwd adds attention of the query h over the rows of ctx to the graph.
// If mask is non-nil, it is added to the scores and should hold 0 for
// attended rows and op.MaskValue for ignored rows.
func (a *Attention) Fwd(b *Bound, h, ctx, mask *G.Node) (AttentionOutput,
	error) {
	if !ctx.IsMatrix() || ctx.Shape()[1] != a.ctx {
		return AttentionOutput{}, fmt.Errorf("fwd: context must be a matrix "+
			"with %v columns, have shape %v", a.ctx, ctx.Shape())
	}

	logits, err := a.Scores(b, h, ctx, mask)
	if err != nil {
		return AttentionOutput{}, err
	}

	weights := op.Softmax(logits)
	weighted, err := G.Mul(G.Must(G.Transpose(ctx)), weights)
	if err != nil {
		return AttentionOutput{}, fmt.Errorf("fwd: %v", err)
	}

	out := weighted
	if a.out != "" {
		cat := G.Must(G.Concat(0, weighted, h))
		out = G.Must(G.Tanh(G.Must(G.Mul(b.Node(a.out), cat))))
	}
	return AttentionOutput{Output: out, Weights: weights, Logits: logits}, nil
}

// Scores adds only the unnormalized, masked attention scores of the
// query h over the rows of ctx to the graph
func (a *Attention) Scores(b *Bound, h, ctx, mask *G.Node) (*G.Node, error) {
	if !ctx.IsMatrix() || ctx.Shape()[1] != a.ctx {
		return nil, fmt.Errorf("scores: context must be a matrix with %v "+
			"columns, have shape %v", a.ctx, ctx.Shape())
	}
	target, err := G.Mul(b.Node(a.in), h)
	if err != nil {
		return nil, fmt.Errorf("scores: %v", err)
	}
	logits, err := G.Mul(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("scores: %v", err)
	}
	if mask != nil {
		logits, err = G.Add(logits, mask)
		if err != nil {
			return nil, fmt.Errorf("scores: %v", err)
		}
	}
	return logits, nil
}

// Rows stacks vectors of equal length into a matrix node, one vector
// per row
func Rows(vectors ...*G.Node) (*G.Node, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("rows: no vectors given")
	}
	rows := make(G.Nodes, len(vectors))
	for i, v := range vectors {
		r, err := G.Reshape(v, []int{1, v.Shape().TotalSize()})
		if err != nil {
			return nil, fmt.Errorf("rows: %v", err)
		}
		rows[i] = r
	}
	if len(rows) == 1 {
		return rows[0], nil
	}
	return G.Concat(0, rows...)
}
