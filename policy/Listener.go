package policy

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/op"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// ErrInvariantViolation is returned when a model or environment breaks
// a structural guarantee, such as an action outside of the candidate
// set. Training cannot recover from such an error.
var ErrInvariantViolation = errors.New("invariant violation")

// Listener is the instruction-following navigation policy. It encodes
// an instruction once per episode and then scores the candidates and
// the stop action of every visited viewpoint.
//
// A Listener owns only its parameters. All per-episode state is held
// by the caller in Context and State values.
type Listener struct {
	config  Config
	params  *network.Params
	encoder *Encoder
	decoder *Decoder
}

// New returns a new Listener with weights initialized from the
// configuration's seed
func New(c Config) (*Listener, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	p := network.NewParams()
	init := c.Init.InitWFn(rand.NewSource(c.Seed))
	enc, err := newEncoder(p, c, init)
	if err != nil {
		return nil, fmt.Errorf("new: encoder: %v", err)
	}
	dec, err := newDecoder(p, c, init)
	if err != nil {
		return nil, fmt.Errorf("new: decoder: %v", err)
	}

	return &Listener{config: c, params: p, encoder: enc, decoder: dec}, nil
}

// Config returns the configuration of the Listener
func (l *Listener) Config() Config {
	return l.config
}

// Params returns the learnable parameters of the Listener
func (l *Listener) Params() *network.Params {
	return l.params
}

// Encode encodes an instruction into a Context
func (l *Listener) Encode(instr instruction.Instruction) (*Context, error) {
	if err := instruction.Validate(instr.Tokens(), l.config.Vocab); err != nil {
		return nil, errors.Wrap(err, "encode")
	}

	g := network.NewGraph()
	b := g.Bind(l.params)
	enc, err := l.encoder.Fwd(b, instr, 0)
	if err != nil {
		return nil, err
	}

	rows, hidden := instr.Len(), l.config.Hidden
	flat, err := G.Reshape(enc.Context, []int{rows * hidden})
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}
	packed, err := G.Concat(0, flat, enc.H, enc.C)
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}
	out := g.Read(packed)
	if err := g.Run(); err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}

	values := network.Floats(*out)
	ctxLen := rows * hidden
	return &Context{
		Rows:   rows,
		Length: rows,
		Hidden: hidden,
		Values: values[:ctxLen],
		H:      values[ctxLen : ctxLen+hidden],
		C:      values[ctxLen+hidden:],
	}, nil
}

// State is the recurrent state of the Listener between two decisions.
// States are values: Step returns a new State and never modifies its
// argument.
type State struct {
	H, C   []float64
	HTilde []float64 // Instruction-attended hidden state

	// PrevAction is the angle encoding of the previous action
	PrevAction []float64
}

// InitialState returns the state at the start of an episode
func (l *Listener) InitialState(ctx *Context) State {
	return State{
		H:          append([]float64(nil), ctx.H...),
		C:          append([]float64(nil), ctx.C...),
		HTilde:     make([]float64, l.config.Hidden),
		PrevAction: make([]float64, l.config.Schema.Angle),
	}
}

// Act returns the state following the choice of action a at obs
func (s State) Act(obs timestep.Viewpoint, a int) State {
	s.PrevAction = obs.ActionAngle(a, len(s.PrevAction))
	return s
}

// stepInput adds the inputs of a decoding step at obs to the graph
func (l *Listener) stepInput(g *network.Graph, prev []float64,
	obs timestep.Viewpoint, mask feature.DropMask,
	blocked []bool) (StepInput, error) {
	dim := l.config.FeatureDim()
	if len(obs.Panorama) == 0 {
		return StepInput{}, fmt.Errorf("stepInput: viewpoint %v has no "+
			"panorama", obs.ID)
	}
	if mask != nil && len(mask) != l.config.Schema.Visual {
		return StepInput{}, fmt.Errorf("stepInput: mask of length %v for "+
			"%v visual features", len(mask), l.config.Schema.Visual)
	}

	in := StepInput{
		PrevAction: g.Vector("prev_action", prev),
		Panorama: g.Matrix("panorama", len(obs.Panorama), dim,
			feature.Rows(obs.Panorama, mask)),
	}

	if n := len(obs.Candidates); n > 0 {
		bundles := make([]feature.Bundle, n)
		for i, c := range obs.Candidates {
			bundles[i] = c.Features
		}
		in.Candidates = g.Matrix("candidates", n, dim,
			feature.Rows(bundles, mask))

		if lm := l.config.Schema.Landmark; lm > 0 {
			landmarks := make([]float64, 0, n*lm)
			for _, b := range bundles {
				landmarks = append(landmarks, b.Landmark...)
			}
			in.Landmarks = g.Matrix("landmarks", n, lm, landmarks)
		}
	}

	if blocked != nil {
		if len(blocked) != obs.NumActions() {
			return StepInput{}, fmt.Errorf("stepInput: %v blocked flags "+
				"for %v actions", len(blocked), obs.NumActions())
		}
		if blocked[obs.StopIndex()] {
			return StepInput{}, fmt.Errorf("stepInput: cannot block stop")
		}
		values := make([]float64, len(blocked))
		for i, b := range blocked {
			if b {
				values[i] = op.MaskValue
			}
		}
		in.Blocked = g.Vector("blocked", values)
	}
	return in, nil
}

// Step computes the action distribution at obs and the following
// recurrent state. The drop mask is applied to the visual features of
// the panorama and candidates. Blocked actions, if given, receive zero
// probability; the stop action can never be blocked.
func (l *Listener) Step(ctx *Context, s State, obs timestep.Viewpoint,
	mask feature.DropMask, blocked []bool) (Distribution, State, error) {
	g := network.NewGraph()
	b := g.Bind(l.params)

	in, err := l.stepInput(g, s.PrevAction, obs, mask, blocked)
	if err != nil {
		return Distribution{}, State{}, fmt.Errorf("step: %v", err)
	}
	out, err := l.decoder.Fwd(b, in, ctx.Bind(g), g.Vector("h", s.H),
		g.Vector("c", s.C))
	if err != nil {
		return Distribution{}, State{}, fmt.Errorf("step: %v", err)
	}

	packed, err := G.Concat(0, out.LogProbs, out.H, out.C, out.HTilde)
	if err != nil {
		return Distribution{}, State{}, fmt.Errorf("step: %v", err)
	}
	v := g.Read(packed)
	if err := g.Run(); err != nil {
		return Distribution{}, State{}, fmt.Errorf("step: %v", err)
	}

	values := network.Floats(*v)
	n, h := obs.NumActions(), l.config.Hidden
	next := State{
		H:          values[n : n+h],
		C:          values[n+h : n+2*h],
		HTilde:     values[n+2*h:],
		PrevAction: append([]float64(nil), s.PrevAction...),
	}
	return Distribution{LogProbs: values[:n]}, next, nil
}

// gobListener is the serialized form of a Listener
type gobListener struct {
	Config []byte
	Params *network.Params
}

// GobEncode implements the gob.GobEncoder interface
func (l *Listener) GobEncode() ([]byte, error) {
	config, err := l.config.encode()
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobListener{Config: config, Params: l.params}); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (l *Listener) GobDecode(in []byte) error {
	var s gobListener
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&s); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	c, err := decodeConfig(s.Config)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	restored, err := New(c)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := restored.params.Set(s.Params); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	*l = *restored
	return nil
}
