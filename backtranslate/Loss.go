package backtranslate

import (
	"fmt"

	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
)

// LossStats describes the losses of a batch
type LossStats struct {
	Lambda    float64
	ML        float64 // Imitation loss of the real examples
	RL        float64 // Policy-gradient and value loss of synthetic examples
	Combined  float64
	Real      int
	Synthetic int

	// Skipped is set when no example carries weight, in which case
	// no update is taken
	Skipped bool
}

// lossGraph holds the loss nodes of a batch
type lossGraph struct {
	g        *network.Graph
	listener *network.Bound
	critic   *network.Bound

	ml, rl, combined *G.Node
	values           int // Number of value terms, which involve the critic
	stats            LossStats
}

// normalizer returns the normalization of the summed loss of examples
// holding decisions decisions in total
func (t *Trainer) normalizer(examples, decisions int) float64 {
	switch t.config.Normalize {
	case Total:
		return float64(decisions)
	case PerExample:
		return float64(examples)
	default:
		return 1
	}
}

// mixWeights returns the weights of the imitation and reinforcement
// learning losses in the combined loss, which is the average of both
// losses weighted by (1-λ)·nReal and λ·nSynthetic. If no loss carries
// weight, ok is false.
func mixWeights(lambda float64, nReal, nSynthetic int) (ml, rl float64,
	ok bool) {
	wml := (1 - lambda) * float64(nReal)
	wrl := lambda * float64(nSynthetic)
	denom := wml + wrl
	if denom == 0 {
		return 0, 0, false
	}
	return wml / denom, wrl / denom, true
}

// buildLoss adds the imitation, reinforcement learning, and combined
// losses of a batch to a new graph
func (t *Trainer) buildLoss(b *Batch, lambda float64) (*lossGraph, error) {
	g := network.NewGraph()
	lg := &lossGraph{g: g, listener: g.Bind(t.listener.Params())}
	lg.critic = g.Bind(t.critic.Params())

	// Instruction contexts of a batch share the longest length
	rows := 0
	for _, ex := range b.Examples {
		if n := ex.Instruction.Len(); n > rows {
			rows = n
		}
	}

	var mlTerms, rlTerms []*G.Node
	var mlDecisions, rlDecisions int
	for _, ex := range b.Examples {
		r, err := t.listener.Replay(lg.listener, ex.Instruction, ex.Trajectory,
			ex.Mask, rows)
		if err != nil {
			return nil, fmt.Errorf("buildLoss: example %v: %w", ex.ID, err)
		}

		if !ex.Synthetic {
			lg.stats.Real++
			mlDecisions += r.Decisions()
			mlTerms = append(mlTerms, r.NLL())
			continue
		}

		lg.stats.Synthetic++
		rlDecisions += r.Decisions()
		pg, err := r.PolicyGradient(ex.Advantages)
		if err != nil {
			return nil, fmt.Errorf("buildLoss: example %v: %v", ex.ID, err)
		}
		value, err := r.ValueLoss(lg.critic, t.critic, ex.Returns)
		if err != nil {
			return nil, fmt.Errorf("buildLoss: example %v: %v", ex.ID, err)
		}
		lg.values += r.Decisions()
		entropy := op.Scale(r.Entropy(), "entropy_coef",
			-t.config.EntropyCoef)
		rlTerms = append(rlTerms, pg, value, entropy)
	}

	lg.ml = op.Sum(g.ExprGraph, "ml_zero", mlTerms...)
	if n := t.normalizer(lg.stats.Real, mlDecisions); n > 0 {
		lg.ml = op.Scale(lg.ml, "ml_norm", 1/n)
	}
	lg.rl = op.Sum(g.ExprGraph, "rl_zero", rlTerms...)
	if n := t.normalizer(lg.stats.Synthetic, rlDecisions); n > 0 {
		lg.rl = op.Scale(lg.rl, "rl_norm", 1/n)
	}

	lg.stats.Lambda = lambda
	wml, wrl, ok := mixWeights(lambda, lg.stats.Real, lg.stats.Synthetic)
	if !ok {
		lg.stats.Skipped = true
		lg.combined = op.Scalar(g.ExprGraph, "combined_zero", 0)
		return lg, nil
	}
	lg.combined = G.Must(G.Add(op.Scale(lg.ml, "ml_weight", wml),
		op.Scale(lg.rl, "rl_weight", wrl)))
	return lg, nil
}

// read registers a read of the three losses of the graph
func (lg *lossGraph) read() (*G.Value, error) {
	packed, err := op.Pack(lg.g.ExprGraph, "losses", lg.ml, lg.rl,
		lg.combined)
	if err != nil {
		return nil, err
	}
	return lg.g.Read(packed), nil
}

// fill fills the loss values of the stats from a read of the graph
func (lg *lossGraph) fill(v *G.Value) LossStats {
	values := network.Floats(*v)
	lg.stats.ML, lg.stats.RL, lg.stats.Combined = values[0], values[1],
		values[2]
	return lg.stats
}

// Loss computes the losses of a batch at mixing weight λ without
// updating any model
func (t *Trainer) Loss(b *Batch, lambda float64) (LossStats, error) {
	lg, err := t.buildLoss(b, lambda)
	if err != nil {
		return LossStats{}, err
	}
	v, err := lg.read()
	if err != nil {
		return LossStats{}, fmt.Errorf("loss: %v", err)
	}
	if err := lg.g.Run(); err != nil {
		return LossStats{}, fmt.Errorf("loss: %v", err)
	}
	return lg.fill(v), nil
}

// update takes one solver step of the Listener and, if any value was
// estimated, one of the Critic on the combined loss of a batch
func (t *Trainer) update(b *Batch, lambda float64) (LossStats, error) {
	lg, err := t.buildLoss(b, lambda)
	if err != nil {
		return LossStats{}, err
	}
	v, err := lg.read()
	if err != nil {
		return LossStats{}, fmt.Errorf("update: %v", err)
	}
	if lg.stats.Skipped {
		if err := lg.g.Run(); err != nil {
			return LossStats{}, fmt.Errorf("update: %v", err)
		}
		return lg.fill(v), nil
	}

	learnables := lg.listener.Learnables()
	if lg.values > 0 {
		learnables = append(learnables, lg.critic.Learnables()...)
	}
	if _, err := G.Grad(lg.combined, learnables...); err != nil {
		return LossStats{}, fmt.Errorf("update: could not compute "+
			"gradient: %v", err)
	}

	vm := G.NewTapeMachine(lg.g.ExprGraph, G.BindDualValues(learnables...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return LossStats{}, fmt.Errorf("update: %v", err)
	}

	if err := t.policySolver.Step(lg.listener.Model()); err != nil {
		return LossStats{}, fmt.Errorf("update: policy: %v", err)
	}
	if lg.values > 0 {
		if err := t.criticSolver.Step(lg.critic.Model()); err != nil {
			return LossStats{}, fmt.Errorf("update: critic: %v", err)
		}
	}
	return lg.fill(v), nil
}
