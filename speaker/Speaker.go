package speaker

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/solver"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/op"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// ErrEmptyTrajectory is returned when describing a trajectory without
// any steps
var ErrEmptyTrajectory = errors.New("empty trajectory")

// Pair is an instruction together with the trajectory it describes
type Pair struct {
	Trajectory  *timestep.Trajectory
	Instruction instruction.Instruction

	// Mask is the environmental dropout mask the trajectory is
	// observed under, nil for none
	Mask feature.DropMask
}

// Speaker generates instructions for trajectories. The Speaker owns its
// parameters and its own solver, and it is never updated through the
// graphs of other models.
type Speaker struct {
	config Config
	params *network.Params
	solver *solver.Solver

	// Encoder
	actionLSTM *network.LSTMCell
	panoAttn   *network.Attention
	postLSTM   *network.LSTMCell

	// Decoder
	embed   *network.Embedding
	lstm    *network.LSTMCell
	attn    *network.Attention
	project *network.Linear
}

// New returns a new Speaker with weights initialized from the
// configuration's seed. The solver is used by Train and may be nil
// for a Speaker that is only used for inference.
func New(c Config, s *solver.Solver) (*Speaker, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	p := network.NewParams()
	init := c.Init.InitWFn(rand.NewSource(c.Seed))
	dim := c.Schema.Dim()
	sp := &Speaker{config: c, params: p, solver: s}

	var err error
	if sp.actionLSTM, err = network.NewLSTMCell(p, "speaker.action", dim,
		c.Hidden, init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sp.panoAttn, err = network.NewAttention(p, "speaker.panorama",
		c.Hidden, dim, 0, init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sp.postLSTM, err = network.NewLSTMCell(p, "speaker.post",
		c.Hidden+dim, c.Hidden, init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sp.embed, err = network.NewEmbedding(p, "speaker.embed", c.Vocab,
		c.WordEmbedding, init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sp.lstm, err = network.NewLSTMCell(p, "speaker.lstm", c.WordEmbedding,
		c.Hidden, init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sp.attn, err = network.NewAttention(p, "speaker.attention", c.Hidden,
		c.Hidden, c.Hidden, init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sp.project, err = network.NewLinear(p, "speaker.project", c.Hidden,
		c.Vocab, true, network.Identity(), init); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return sp, nil
}

// Config returns the configuration of the Speaker
func (s *Speaker) Config() Config {
	return s.config
}

// Params returns the learnable parameters of the Speaker
func (s *Speaker) Params() *network.Params {
	return s.params
}

// Solver returns the solver of the Speaker
func (s *Speaker) Solver() *solver.Solver {
	return s.solver
}

// encoding is an encoded trajectory in an expression graph
type encoding struct {
	ctx   *G.Node // One row per step
	steps int
	h, c  *G.Node // Initial decoder state
}

// encode adds the encoding of traj under the drop mask to the graph
func (s *Speaker) encode(b *network.Bound, traj *timestep.Trajectory,
	mask feature.DropMask) (*encoding, error) {
	if traj == nil || traj.Len() == 0 {
		return nil, ErrEmptyTrajectory
	}
	if mask != nil && len(mask) != s.config.Schema.Visual {
		return nil, fmt.Errorf("encode: mask of length %v for %v visual "+
			"features", len(mask), s.config.Schema.Visual)
	}
	g := b.Graph()
	dim, hidden := s.config.Schema.Dim(), s.config.Hidden

	h, c := g.Zeros("speaker_h", hidden), g.Zeros("speaker_c", hidden)
	postH, postC := g.Zeros("speaker_ph", hidden), g.Zeros("speaker_pc", hidden)
	rows := make([]*G.Node, 0, traj.Len())

	var err error
	for i, step := range traj.Steps {
		obs := step.Observation
		if len(obs.Panorama) == 0 {
			return nil, fmt.Errorf("encode: step %v: viewpoint %v has no "+
				"panorama", i, obs.ID)
		}

		action := obs.ActionFeatures(step.Action, s.config.Schema)
		h, c, err = s.actionLSTM.Fwd(b, g.Vector("speaker_action",
			action.Vector(mask)), h, c)
		if err != nil {
			return nil, fmt.Errorf("encode: step %v: %v", i, err)
		}

		pano := g.Matrix("speaker_panorama", len(obs.Panorama), dim,
			feature.Rows(obs.Panorama, mask))
		att, err := s.panoAttn.Fwd(b, h, pano, nil)
		if err != nil {
			return nil, fmt.Errorf("encode: step %v: %v", i, err)
		}

		x, err := G.Concat(0, h, att.Output)
		if err != nil {
			return nil, fmt.Errorf("encode: step %v: %v", i, err)
		}
		postH, postC, err = s.postLSTM.Fwd(b, x, postH, postC)
		if err != nil {
			return nil, fmt.Errorf("encode: step %v: %v", i, err)
		}
		rows = append(rows, postH)
	}

	ctx, err := network.Rows(rows...)
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}
	return &encoding{ctx: ctx, steps: traj.Len(), h: postH, c: postC}, nil
}

// decode adds a single decoding step, consuming token, to the graph
func (s *Speaker) decode(b *network.Bound, token int, h, c,
	ctx *G.Node) (logits, nextH, nextC *G.Node, err error) {
	x, err := s.embed.Fwd(b, token)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode: %v", err)
	}
	nextH, nextC, err = s.lstm.Fwd(b, x, h, c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode: %v", err)
	}
	att, err := s.attn.Fwd(b, nextH, ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode: %v", err)
	}
	logits, err = s.project.Fwd(b, att.Output)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode: %v", err)
	}
	return logits, nextH, nextC, nil
}

// Loss adds the teacher-forced cross-entropy of instr given traj to the
// graph of b. The loss is summed over the predicted tokens, whose
// number is also returned.
func (s *Speaker) Loss(b *network.Bound, traj *timestep.Trajectory,
	instr instruction.Instruction, mask feature.DropMask) (*G.Node, int,
	error) {
	if err := instruction.Validate(instr.Tokens(), s.config.Vocab); err != nil {
		return nil, 0, errors.Wrap(err, "loss")
	}
	enc, err := s.encode(b, traj, mask)
	if err != nil {
		return nil, 0, errors.Wrap(err, "loss")
	}

	tokens := instr.Tokens()
	h, c := enc.h, enc.c
	terms := make([]*G.Node, 0, len(tokens)-1)
	for i := 0; i < len(tokens)-1; i++ {
		var logits *G.Node
		logits, h, c, err = s.decode(b, tokens[i], h, c, enc.ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("loss: %v", err)
		}
		logp := op.LogSoftmax(logits)
		terms = append(terms, G.Must(G.Neg(op.At(logp, tokens[i+1]))))
	}
	return op.Sum(b.Graph().ExprGraph, "speaker_loss", terms...),
		len(terms), nil
}

// Score returns the log-likelihood of instr describing traj
func (s *Speaker) Score(traj *timestep.Trajectory,
	instr instruction.Instruction, mask feature.DropMask) (float64, error) {
	g := network.NewGraph()
	loss, _, err := s.Loss(g.Bind(s.params), traj, instr, mask)
	if err != nil {
		return 0, errors.Wrap(err, "score")
	}
	v := g.Read(loss)
	if err := g.Run(); err != nil {
		return 0, fmt.Errorf("score: %v", err)
	}
	return -network.Floats(*v)[0], nil
}

// Train takes a single solver step on the mean per-token cross-entropy
// of a batch of pairs, and returns that mean. Pairs that cannot be
// used are skipped and their errors returned.
func (s *Speaker) Train(pairs []Pair) (float64, []error, error) {
	if s.solver == nil {
		return 0, nil, fmt.Errorf("train: speaker has no solver")
	}

	g := network.NewGraph()
	b := g.Bind(s.params)
	var losses []*G.Node
	var skipped []error
	tokens := 0
	for _, p := range pairs {
		loss, n, err := s.Loss(b, p.Trajectory, p.Instruction, p.Mask)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		losses = append(losses, loss)
		tokens += n
	}
	if tokens == 0 {
		return 0, skipped, fmt.Errorf("train: no usable pairs")
	}

	cost := op.Scale(op.Sum(g.ExprGraph, "speaker_cost", losses...),
		"speaker_norm", 1/float64(tokens))
	costVal := g.Read(cost)

	learnables := b.Learnables()
	if _, err := G.Grad(cost, learnables...); err != nil {
		return 0, skipped, fmt.Errorf("train: could not compute gradient: "+
			"%v", err)
	}
	vm := G.NewTapeMachine(g.ExprGraph, G.BindDualValues(learnables...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, skipped, fmt.Errorf("train: %v", err)
	}
	if err := s.solver.Step(b.Model()); err != nil {
		return 0, skipped, fmt.Errorf("train: %v", err)
	}
	return network.Floats(*costVal)[0], skipped, nil
}

// gobSpeaker is the serialized form of a Speaker
type gobSpeaker struct {
	Config []byte
	Params *network.Params
	Solver *solver.Solver
}

// GobEncode implements the gob.GobEncoder interface
func (s *Speaker) GobEncode() ([]byte, error) {
	config, err := s.config.encode()
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}

	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(gobSpeaker{
		Config: config,
		Params: s.params,
		Solver: s.solver,
	})
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (s *Speaker) GobDecode(in []byte) error {
	var enc gobSpeaker
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&enc); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	c, err := decodeConfig(enc.Config)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	restored, err := New(c, enc.Solver)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := restored.params.Set(enc.Params); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	*s = *restored
	return nil
}
