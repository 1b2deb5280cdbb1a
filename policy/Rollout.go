package policy

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/timestep"
	"golang.org/x/exp/rand"
)

// RolloutOptions determine how a Listener acts in an episode
type RolloutOptions struct {
	Mode        Mode
	Temperature float64 // Used in Sample mode, 1 if unset

	// Mask is the environmental dropout mask of the episode, nil for
	// none
	Mask feature.DropMask

	// MaxSteps overrides the Listener's step budget if positive
	MaxSteps int

	// AvoidRevisit blocks candidates that were already visited in the
	// episode
	AvoidRevisit bool

	// Src samples in Sample mode and is required there. In Greedy mode
	// it breaks ties uniformly; ties go to the lowest index if it is nil.
	Src rand.Source
}

// Episode is the record of a Listener acting in an environment
type Episode struct {
	Spec       environment.EpisodeSpec
	Trajectory *timestep.Trajectory

	// Distributions and HTilde hold the action distribution and the
	// instruction-attended state of every step
	Distributions []Distribution
	HTilde        [][]float64

	// Distance is the final distance to the goal
	Distance float64
}

// Rollout runs a single episode of the Listener following instr from
// the start of spec until it stops. A stop is forced once the step
// budget is exhausted, which is recorded in the trajectory.
func (l *Listener) Rollout(env environment.Environment,
	spec environment.EpisodeSpec, instr instruction.Instruction,
	opts RolloutOptions) (*Episode, error) {
	maxSteps := l.config.MaxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 1
	}
	if opts.Mode == Sample && opts.Src == nil {
		return nil, errors.Errorf("rollout %v: sampling requires a "+
			"randomness source", spec.ID)
	}

	ctx, err := l.Encode(instr)
	if err != nil {
		return nil, err
	}
	ts, err := env.Reset(spec)
	if err != nil {
		return nil, errors.Wrap(err, "rollout")
	}

	ep := &Episode{
		Spec:       spec,
		Trajectory: &timestep.Trajectory{ID: spec.ID, Scan: spec.Scan},
	}
	state := l.InitialState(ctx)
	visited := map[string]bool{ts.Observation.ID: true}

	for t := 0; ; t++ {
		obs := ts.Observation
		var blocked []bool
		if opts.AvoidRevisit {
			blocked = blockVisited(obs, visited)
		}

		dist, next, err := l.Step(ctx, state, obs, opts.Mask, blocked)
		if err != nil {
			return nil, errors.Wrapf(err, "rollout %v", spec.ID)
		}

		forced := t >= maxSteps
		var a int
		if forced {
			a = obs.StopIndex()
		} else {
			a, err = dist.Select(opts.Mode, temperature, opts.Src)
			if err != nil {
				return nil, errors.Wrapf(err, "rollout %v", spec.ID)
			}
		}
		if a < 0 || a >= obs.NumActions() {
			return nil, errors.Wrapf(ErrInvariantViolation, "rollout %v: "+
				"action %v with %v candidates", spec.ID, a,
				len(obs.Candidates))
		}

		var done bool
		ts, done, err = env.Step(a)
		if errors.Is(err, environment.ErrInvalidAction) {
			return nil, errors.Wrapf(ErrInvariantViolation, "rollout %v: %v",
				spec.ID, err)
		} else if err != nil {
			return nil, errors.Wrapf(err, "rollout %v", spec.ID)
		}

		ep.Trajectory.Steps = append(ep.Trajectory.Steps, timestep.Step{
			Observation: obs,
			Action:      a,
			Reward:      ts.Reward,
			Forced:      forced,
		})
		ep.Distributions = append(ep.Distributions, dist)
		ep.HTilde = append(ep.HTilde, next.HTilde)
		ep.Distance = ts.Distance

		if done {
			ep.Trajectory.BudgetExceeded = forced || ts.BudgetExceeded
			return ep, nil
		}
		visited[ts.Observation.ID] = true
		state = next.Act(obs, a)
	}
}

// blockVisited returns the blocked flags of the actions at obs that
// lead to an already visited viewpoint
func blockVisited(obs timestep.Viewpoint, visited map[string]bool) []bool {
	blocked := make([]bool, obs.NumActions())
	for i, c := range obs.Candidates {
		blocked[i] = visited[c.ViewpointID]
	}
	return blocked
}
