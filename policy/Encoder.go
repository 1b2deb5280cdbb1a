package policy

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
)

// Encoder encodes an instruction into one context vector per token and
// an initial decoder state
type Encoder struct {
	embed  *network.Embedding
	lstm   *network.LSTMCell
	bridge *network.Linear
	hidden int
}

func newEncoder(p *network.Params, c Config, init G.InitWFn) (*Encoder,
	error) {
	embed, err := network.NewEmbedding(p, "encoder.embed", c.Vocab,
		c.WordEmbedding, init)
	if err != nil {
		return nil, err
	}
	lstm, err := network.NewLSTMCell(p, "encoder.lstm", c.WordEmbedding,
		c.Hidden, init)
	if err != nil {
		return nil, err
	}
	bridge, err := network.NewLinear(p, "encoder.bridge", c.Hidden, c.Hidden,
		true, network.TanH(), init)
	if err != nil {
		return nil, err
	}
	return &Encoder{embed: embed, lstm: lstm, bridge: bridge,
		hidden: c.Hidden}, nil
}

// Encoding is an encoded instruction in an expression graph
type Encoding struct {
	// Context holds one row per token position. Rows past Length are
	// padding and are excluded from attention by Mask.
	Context *G.Node
	Mask    *G.Node // nil if there is no padding
	Length  int

	// H and C are the initial decoder hidden and cell states
	H, C *G.Node
}

// Fwd adds the encoding of instr to the graph. If padTo exceeds the
// length of the instruction, the context is padded with zero rows
// that receive no attention and do not affect the initial state.
func (e *Encoder) Fwd(b *network.Bound, instr instruction.Instruction,
	padTo int) (*Encoding, error) {
	if !instr.Valid() {
		return nil, errors.Wrap(instruction.ErrInvalidInstruction,
			"encode: uninitialized instruction")
	}
	g := b.Graph()

	rows := instr.Len()
	if padTo > rows {
		rows = padTo
	}
	ids, length := instr.Padded(rows)

	h := g.Zeros("encoder_h0", e.hidden)
	c := g.Zeros("encoder_c0", e.hidden)
	states := make([]*G.Node, 0, rows)
	for i, tok := range ids[:length] {
		x, err := e.embed.Fwd(b, tok)
		if err != nil {
			return nil, errors.Wrap(instruction.ErrInvalidInstruction,
				fmt.Sprintf("encode: token %v: %v", i, err))
		}
		h, c, err = e.lstm.Fwd(b, x, h, c)
		if err != nil {
			return nil, fmt.Errorf("encode: %v", err)
		}
		states = append(states, h)
	}

	init, err := e.bridge.Fwd(b, h)
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}

	enc := &Encoding{H: init, C: c, Length: length}
	if rows > length {
		mask := make([]float64, rows)
		for i := length; i < rows; i++ {
			states = append(states, g.Zeros("encoder_pad", e.hidden))
			mask[i] = op.MaskValue
		}
		enc.Mask = g.Vector("encoder_mask", mask)
	}

	enc.Context, err = network.Rows(states...)
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}
	return enc, nil
}

// Context is a numeric instruction encoding, computed once per episode
// and reused at every decoding step
type Context struct {
	Rows   int
	Length int
	Hidden int
	Values []float64 // Rows x Hidden context, row-major
	H, C   []float64
}

// Bind adds the Context to a graph as an Encoding
func (c *Context) Bind(g *network.Graph) *Encoding {
	return &Encoding{
		Context: g.Matrix("context", c.Rows, c.Hidden, c.Values),
		H:       g.Vector("context_h", c.H),
		C:       g.Vector("context_c", c.C),
		Length:  c.Length,
	}
}
