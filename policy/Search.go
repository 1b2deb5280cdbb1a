package policy

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/timestep"
)

// SearchOptions determine the beam search of a Listener
type SearchOptions struct {
	// BeamWidth is the number of partial paths kept after each step
	BeamWidth int

	Mask         feature.DropMask
	MaxSteps     int // Overrides the Listener's step budget if positive
	AvoidRevisit bool
}

// Path is a finished episode found by beam search and the total
// log-probability of the Listener's decisions along it. Forced stops
// do not contribute to LogProb.
type Path struct {
	Episode *Episode
	LogProb float64
}

// hypothesis is a partial path in the beam. Each hypothesis owns its
// Session.
type hypothesis struct {
	env     *environment.Session
	ts      timestep.TimeStep
	state   State
	ep      *Episode
	logProb float64
}

// expansion is a hypothesis extended by a single action
type expansion struct {
	parent  int
	action  int
	forced  bool
	dist    Distribution
	next    State
	logProb float64
}

// Search runs a beam search of the Listener following instr from the
// start of spec. At each step every partial path is extended by each
// of its allowed actions, and the BeamWidth most probable extensions
// are kept. Extensions ending in a stop leave the beam. Stops are
// forced once the step budget is exhausted, so the search always ends.
//
// The finished paths are returned in order of decreasing
// log-probability, ties going to the path found first. With a beam
// width of 1, Search follows the Greedy rollout.
func (l *Listener) Search(env *environment.Session,
	spec environment.EpisodeSpec, instr instruction.Instruction,
	opts SearchOptions) ([]Path, error) {
	if opts.BeamWidth < 1 {
		return nil, errors.Errorf("search %v: beam width must be "+
			"positive, have(%v)", spec.ID, opts.BeamWidth)
	}
	maxSteps := l.config.MaxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}

	ctx, err := l.Encode(instr)
	if err != nil {
		return nil, err
	}
	ts, err := env.Reset(spec)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}

	beam := []hypothesis{{
		env:   env,
		ts:    ts,
		state: l.InitialState(ctx),
		ep: &Episode{
			Spec:       spec,
			Trajectory: &timestep.Trajectory{ID: spec.ID, Scan: spec.Scan},
		},
	}}
	var finished []Path

	for t := 0; len(beam) > 0; t++ {
		forced := t >= maxSteps

		var exps []expansion
		for i, h := range beam {
			obs := h.ts.Observation
			var blocked []bool
			if opts.AvoidRevisit {
				visited := make(map[string]bool)
				for _, vp := range h.env.Path() {
					visited[vp] = true
				}
				blocked = blockVisited(obs, visited)
			}

			dist, next, err := l.Step(ctx, h.state, obs, opts.Mask, blocked)
			if err != nil {
				return nil, errors.Wrapf(err, "search %v", spec.ID)
			}

			if forced {
				exps = append(exps, expansion{
					parent:  i,
					action:  obs.StopIndex(),
					forced:  true,
					dist:    dist,
					next:    next,
					logProb: h.logProb,
				})
				continue
			}
			for a, lp := range dist.LogProbs {
				if blocked != nil && blocked[a] {
					continue
				}
				exps = append(exps, expansion{
					parent:  i,
					action:  a,
					dist:    dist,
					next:    next,
					logProb: h.logProb + lp,
				})
			}
		}

		sort.SliceStable(exps, func(i, j int) bool {
			return exps[i].logProb > exps[j].logProb
		})
		if len(exps) > opts.BeamWidth {
			exps = exps[:opts.BeamWidth]
		}

		var kept []hypothesis
		for _, x := range exps {
			h := beam[x.parent]
			obs := h.ts.Observation

			fork := h.env.Fork()
			ts, done, err := fork.Step(x.action)
			if errors.Is(err, environment.ErrInvalidAction) {
				return nil, errors.Wrapf(ErrInvariantViolation, "search %v: %v",
					spec.ID, err)
			} else if err != nil {
				return nil, errors.Wrapf(err, "search %v", spec.ID)
			}

			ep := h.ep.extend(timestep.Step{
				Observation: obs,
				Action:      x.action,
				Reward:      ts.Reward,
				Forced:      x.forced,
			}, x.dist, x.next.HTilde, ts.Distance)

			if done {
				ep.Trajectory.BudgetExceeded = x.forced || ts.BudgetExceeded
				finished = append(finished, Path{Episode: ep, LogProb: x.logProb})
				continue
			}
			kept = append(kept, hypothesis{
				env:     fork,
				ts:      ts,
				state:   x.next.Act(obs, x.action),
				ep:      ep,
				logProb: x.logProb,
			})
		}
		beam = kept
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].LogProb > finished[j].LogProb
	})
	return finished, nil
}

// extend returns a copy of the episode with one more step. The
// receiver is not modified.
func (e *Episode) extend(s timestep.Step, d Distribution, hTilde []float64,
	distance float64) *Episode {
	traj := *e.Trajectory
	traj.Steps = append(append([]timestep.Step(nil), e.Trajectory.Steps...), s)

	return &Episode{
		Spec:          e.Spec,
		Trajectory:    &traj,
		Distributions: append(append([]Distribution(nil), e.Distributions...), d),
		HTilde:        append(append([][]float64(nil), e.HTilde...), hTilde),
		Distance:      distance,
	}
}
