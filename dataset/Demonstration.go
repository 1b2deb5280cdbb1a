package dataset

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/timestep"
)

// Demonstration walks the ground-truth path of item in env and returns
// the recorded trajectory, which ends with a stop at the last
// viewpoint of the path. Paths that leave the navigation graph or
// exceed the step budget of env return an error wrapping
// ErrMalformedPath.
func Demonstration(env environment.Environment,
	item Item) (*timestep.Trajectory, error) {
	if len(item.Path) == 0 {
		return nil, errors.Wrapf(ErrMalformedPath, "demonstration %v: "+
			"empty path", item.ID)
	}
	ts, err := env.Reset(item.Spec())
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedPath, "demonstration %v: %v",
			item.ID, err)
	}

	traj := &timestep.Trajectory{ID: item.ID, Scan: item.Scan}
	for _, next := range item.Path[1:] {
		obs := ts.Observation
		a := obs.Candidate(next)
		if a < 0 {
			return nil, errors.Wrapf(ErrMalformedPath, "demonstration %v: "+
				"%v is not navigable from %v", item.ID, next, obs.ID)
		}

		var done bool
		ts, done, err = env.Step(a)
		if err != nil {
			return nil, errors.Wrapf(err, "demonstration %v", item.ID)
		}
		traj.Steps = append(traj.Steps, timestep.Step{
			Observation: obs,
			Action:      a,
			Reward:      ts.Reward,
		})
		if done {
			return nil, errors.Wrapf(ErrMalformedPath, "demonstration %v: "+
				"path exceeds the step budget", item.ID)
		}
	}

	obs := ts.Observation
	ts, _, err = env.Step(obs.StopIndex())
	if err != nil {
		return nil, errors.Wrapf(err, "demonstration %v", item.ID)
	}
	traj.Steps = append(traj.Steps, timestep.Step{
		Observation: obs,
		Action:      obs.StopIndex(),
		Reward:      ts.Reward,
	})
	return traj, nil
}

// Filter returns the items whose paths can be demonstrated in env,
// along with the errors of the dropped items
func Filter(env environment.Environment, items []Item) ([]Item, []error) {
	var kept []Item
	var errs []error
	for _, item := range items {
		if _, err := Demonstration(env, item); err != nil {
			errs = append(errs, err)
			continue
		}
		kept = append(kept, item)
	}
	return kept, errs
}

// Teacher is an Environment that knows the next action on a shortest
// path to the goal of its episode
type Teacher interface {
	environment.Environment
	TeacherAction() (int, error)
}

// Shortest follows the teacher actions of env from the start of spec
// until they stop at the goal, and returns the recorded trajectory.
// Episodes cut by the step budget are returned with BudgetExceeded
// set.
func Shortest(env Teacher, spec environment.EpisodeSpec) (
	*timestep.Trajectory, error) {
	ts, err := env.Reset(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "shortest %v", spec.ID)
	}

	traj := &timestep.Trajectory{ID: spec.ID, Scan: spec.Scan}
	for {
		obs := ts.Observation
		a, err := env.TeacherAction()
		if err != nil {
			return nil, errors.Wrapf(err, "shortest %v", spec.ID)
		}

		var done bool
		ts, done, err = env.Step(a)
		if err != nil {
			return nil, errors.Wrapf(err, "shortest %v", spec.ID)
		}
		traj.Steps = append(traj.Steps, timestep.Step{
			Observation: obs,
			Action:      a,
			Reward:      ts.Reward,
		})
		if done {
			traj.BudgetExceeded = !traj.Steps[len(traj.Steps)-1].Stopped()
			return traj, nil
		}
	}
}
