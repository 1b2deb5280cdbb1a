package policy

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
)

// Replay holds the nodes of a Listener re-running the recorded
// decisions of a trajectory in a differentiable graph
type Replay struct {
	g    *network.Graph
	traj *timestep.Trajectory

	LogProbs []*G.Node // Action log-probabilities at each step
	HTilde   []*G.Node // Instruction-attended state at each step
}

// Replay adds the Listener's decisions along traj, conditioned on
// instr and under the drop mask, to the graph of b. Each step is
// scored on the observation recorded in the trajectory. The
// instruction context is padded to padTo rows if that exceeds its
// length, which leaves every decision unchanged.
func (l *Listener) Replay(b *network.Bound, instr instruction.Instruction,
	traj *timestep.Trajectory, mask feature.DropMask,
	padTo int) (*Replay, error) {
	if traj.Len() == 0 {
		return nil, fmt.Errorf("replay: empty trajectory")
	}
	if err := instruction.Validate(instr.Tokens(), l.config.Vocab); err != nil {
		return nil, errors.Wrap(err, "replay")
	}

	g := b.Graph()
	enc, err := l.encoder.Fwd(b, instr, padTo)
	if err != nil {
		return nil, err
	}

	r := &Replay{g: g, traj: traj}
	h, c := enc.H, enc.C
	prev := make([]float64, l.config.Schema.Angle)
	for i, step := range traj.Steps {
		obs := step.Observation
		if step.Action < 0 || step.Action >= obs.NumActions() {
			return nil, errors.Wrapf(ErrInvariantViolation, "replay %v: "+
				"step %v: action %v with %v candidates", traj.ID, i,
				step.Action, len(obs.Candidates))
		}

		in, err := l.stepInput(g, prev, obs, mask, nil)
		if err != nil {
			return nil, fmt.Errorf("replay: step %v: %v", i, err)
		}
		out, err := l.decoder.Fwd(b, in, enc, h, c)
		if err != nil {
			return nil, fmt.Errorf("replay: step %v: %v", i, err)
		}

		r.LogProbs = append(r.LogProbs, out.LogProbs)
		r.HTilde = append(r.HTilde, out.HTilde)
		h, c = out.H, out.C
		prev = obs.ActionAngle(step.Action, len(prev))
	}
	return r, nil
}

// Decisions returns the number of steps chosen by the Listener rather
// than forced by the step budget
func (r *Replay) Decisions() int {
	n := 0
	for _, s := range r.traj.Steps {
		if !s.Forced {
			n++
		}
	}
	return n
}

// ActionLogProb returns the log-probability of the recorded action of
// step i
func (r *Replay) ActionLogProb(i int) *G.Node {
	return op.At(r.LogProbs[i], r.traj.Steps[i].Action)
}

// NLL returns the summed negative log-likelihood of the recorded
// actions of all unforced steps
func (r *Replay) NLL() *G.Node {
	var terms []*G.Node
	for i, s := range r.traj.Steps {
		if s.Forced {
			continue
		}
		terms = append(terms, G.Must(G.Neg(r.ActionLogProb(i))))
	}
	return op.Sum(r.g.ExprGraph, "nll_zero", terms...)
}

// PolicyGradient returns the summed policy-gradient loss
// -A_t log π(a_t) of all unforced steps, for constant advantages adv
func (r *Replay) PolicyGradient(adv []float64) (*G.Node, error) {
	if len(adv) != r.traj.Len() {
		return nil, fmt.Errorf("policyGradient: %v advantages for %v steps",
			len(adv), r.traj.Len())
	}
	var terms []*G.Node
	for i, s := range r.traj.Steps {
		if s.Forced {
			continue
		}
		terms = append(terms, op.Scale(r.ActionLogProb(i), "advantage",
			-adv[i]))
	}
	return op.Sum(r.g.ExprGraph, "pg_zero", terms...), nil
}

// Entropy returns the summed entropy of the action distributions of
// all unforced steps
func (r *Replay) Entropy() *G.Node {
	var terms []*G.Node
	for i, s := range r.traj.Steps {
		if s.Forced {
			continue
		}
		terms = append(terms, op.Entropy(r.LogProbs[i]))
	}
	return op.Sum(r.g.ExprGraph, "entropy_zero", terms...)
}

// ValueLoss returns ½ Σ (R_t - V(h̃_t))² over all unforced steps for
// constant returns ret, using critic as V
func (r *Replay) ValueLoss(b *network.Bound, critic *Critic,
	ret []float64) (*G.Node, error) {
	if len(ret) != r.traj.Len() {
		return nil, fmt.Errorf("valueLoss: %v returns for %v steps",
			len(ret), r.traj.Len())
	}
	var terms []*G.Node
	for i, s := range r.traj.Steps {
		if s.Forced {
			continue
		}
		v, err := critic.Fwd(b, r.HTilde[i])
		if err != nil {
			return nil, fmt.Errorf("valueLoss: %v", err)
		}
		diff := G.Must(G.Sub(r.g.Scalar("return", ret[i]), v))
		terms = append(terms, op.Scale(G.Must(G.Square(diff)), "half", 0.5))
	}
	return op.Sum(r.g.ExprGraph, "value_zero", terms...), nil
}
