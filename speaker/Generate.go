package speaker

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// Strategy determines how words are chosen when generating
type Strategy int

const (
	// Greedy chooses the most likely word at every position
	Greedy Strategy = iota

	// Sample samples every word from the temperature-scaled
	// distribution over the vocabulary
	Sample

	// Beam keeps the BeamWidth most likely partial instructions
	Beam
)

// GenerateOptions determine how instructions are generated
type GenerateOptions struct {
	Strategy    Strategy
	Temperature float64 // Used by Sample, 1 if unset
	BeamWidth   int     // Used by Beam, 4 if unset
	Src         rand.Source
}

// context is the numeric encoding of a trajectory, computed once per
// generated instruction
type context struct {
	rows   int
	values []float64
	h, c   []float64
}

// encodeValues encodes traj into a context
func (s *Speaker) encodeValues(traj *timestep.Trajectory,
	mask feature.DropMask) (*context, error) {
	g := network.NewGraph()
	enc, err := s.encode(g.Bind(s.params), traj, mask)
	if err != nil {
		return nil, err
	}

	hidden := s.config.Hidden
	flat, err := G.Reshape(enc.ctx, []int{enc.steps * hidden})
	if err != nil {
		return nil, fmt.Errorf("encodeValues: %v", err)
	}
	packed, err := G.Concat(0, flat, enc.h, enc.c)
	if err != nil {
		return nil, fmt.Errorf("encodeValues: %v", err)
	}
	v := g.Read(packed)
	if err := g.Run(); err != nil {
		return nil, fmt.Errorf("encodeValues: %v", err)
	}

	values := network.Floats(*v)
	n := enc.steps * hidden
	return &context{
		rows:   enc.steps,
		values: values[:n],
		h:      values[n : n+hidden],
		c:      values[n+hidden:],
	}, nil
}

// next returns the log-probabilities of the word following token and
// the next recurrent state
func (s *Speaker) next(ctx *context, token int, h,
	c []float64) (logp, nextH, nextC []float64, err error) {
	g := network.NewGraph()
	b := g.Bind(s.params)
	hidden := s.config.Hidden

	logits, hn, cn, err := s.decode(b, token, g.Vector("h", h),
		g.Vector("c", c), g.Matrix("speaker_ctx", ctx.rows, hidden,
			ctx.values))
	if err != nil {
		return nil, nil, nil, err
	}
	packed, err := G.Concat(0, logits, hn, cn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("next: %v", err)
	}
	v := g.Read(packed)
	if err := g.Run(); err != nil {
		return nil, nil, nil, fmt.Errorf("next: %v", err)
	}

	values := network.Floats(*v)
	vocab := s.config.Vocab
	return floatutils.LogSoftmax(values[:vocab]), values[vocab : vocab+hidden],
		values[vocab+hidden:], nil
}

// restrict removes words that cannot appear at position pos of an
// instruction of at most maxLength tokens, by setting their
// log-probabilities to -Inf. The result is renormalized.
func restrict(logp []float64, pos, maxLength int) []float64 {
	out := append([]float64(nil), logp...)
	out[instruction.PAD] = math.Inf(-1)
	out[instruction.BOS] = math.Inf(-1)
	switch {
	case pos == 1:
		// Instructions hold at least one word
		out[instruction.EOS] = math.Inf(-1)
	case pos == maxLength-1:
		for i := range out {
			if i != instruction.EOS {
				out[i] = math.Inf(-1)
			}
		}
	}
	return floatutils.LogSoftmax(out)
}

// Generate generates an instruction describing traj, observed under
// the drop mask. Generation ends at the end token or at the maximum
// instruction length.
func (s *Speaker) Generate(traj *timestep.Trajectory, mask feature.DropMask,
	opts GenerateOptions) (instruction.Instruction, error) {
	ctx, err := s.encodeValues(traj, mask)
	if err != nil {
		return instruction.Instruction{}, errors.Wrap(err, "generate")
	}

	var tokens []int
	switch opts.Strategy {
	case Greedy, Sample:
		tokens, err = s.sequential(ctx, opts)
	case Beam:
		tokens, err = s.beam(ctx, opts)
	default:
		err = fmt.Errorf("unknown strategy %v", opts.Strategy)
	}
	if err != nil {
		return instruction.Instruction{}, errors.Wrap(err, "generate")
	}
	return instruction.New(tokens, s.config.Vocab)
}

// sequential generates an instruction one word at a time
func (s *Speaker) sequential(ctx *context, opts GenerateOptions) ([]int,
	error) {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 1
	}
	if temperature < 0 {
		return nil, fmt.Errorf("sequential: temperature must be "+
			"positive, have(%v)", temperature)
	}
	src := opts.Src
	if src == nil {
		src = rand.NewSource(s.config.Seed)
	}

	tokens := []int{instruction.BOS}
	h, c := ctx.h, ctx.c
	for len(tokens) < s.config.MaxLength {
		logp, nextH, nextC, err := s.next(ctx, tokens[len(tokens)-1], h, c)
		if err != nil {
			return nil, err
		}
		logp = restrict(logp, len(tokens), s.config.MaxLength)

		var word int
		if opts.Strategy == Greedy {
			word = floatutils.Argmax(logp)
		} else {
			weights := floatutils.Softmax(logp, temperature)
			word = int(distuv.NewCategorical(weights, src).Rand())
		}

		tokens = append(tokens, word)
		if word == instruction.EOS {
			break
		}
		h, c = nextH, nextC
	}
	return tokens, nil
}

// hypothesis is a partial instruction of a beam search
type hypothesis struct {
	tokens []int
	logp   float64
	h, c   []float64
}

// beam generates the most likely instruction found by a beam search
func (s *Speaker) beam(ctx *context, opts GenerateOptions) ([]int, error) {
	width := opts.BeamWidth
	if width == 0 {
		width = 4
	}
	if width < 0 {
		return nil, fmt.Errorf("beam: width must be positive, have(%v)",
			width)
	}

	beams := []hypothesis{{tokens: []int{instruction.BOS}, h: ctx.h, c: ctx.c}}
	var finished []hypothesis
	for len(beams) > 0 {
		var candidates []hypothesis
		for _, hyp := range beams {
			logp, h, c, err := s.next(ctx, hyp.tokens[len(hyp.tokens)-1],
				hyp.h, hyp.c)
			if err != nil {
				return nil, err
			}
			logp = restrict(logp, len(hyp.tokens), s.config.MaxLength)

			for _, word := range topK(logp, width) {
				tokens := append(append([]int(nil), hyp.tokens...), word)
				candidates = append(candidates, hypothesis{
					tokens: tokens,
					logp:   hyp.logp + logp[word],
					h:      h,
					c:      c,
				})
			}
		}
		sortHypotheses(candidates)

		beams = beams[:0]
		for _, hyp := range candidates {
			if len(beams)+len(finished) >= width {
				break
			}
			if hyp.tokens[len(hyp.tokens)-1] == instruction.EOS {
				finished = append(finished, hyp)
			} else {
				beams = append(beams, hyp)
			}
		}
	}

	sortHypotheses(finished)
	return finished[0].tokens, nil
}

// sortHypotheses sorts by decreasing log-probability, breaking ties
// by token sequence so that the order is deterministic
func sortHypotheses(hyps []hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		if hyps[i].logp != hyps[j].logp {
			return hyps[i].logp > hyps[j].logp
		}
		a, b := hyps[i].tokens, hyps[j].tokens
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

// topK returns the indices of the k largest finite entries of v
func topK(v []float64, k int) []int {
	ix := make([]int, 0, len(v))
	for i, x := range v {
		if !math.IsInf(x, -1) {
			ix = append(ix, i)
		}
	}
	sort.SliceStable(ix, func(i, j int) bool {
		return v[ix[i]] > v[ix[j]]
	})
	if len(ix) > k {
		ix = ix[:k]
	}
	return ix
}
