package backtranslate

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/buffer/gae"
	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/speaker"
	"github.com/samuelfneumann/vlnav/timestep"
	"gonum.org/v1/gonum/stat/distuv"
)

// Example is a single training example of a batch
type Example struct {
	ID          string
	Synthetic   bool
	Instruction instruction.Instruction

	// Trajectory is the demonstration of a real example, or the
	// rollout of the Listener following the instruction of a synthetic
	// example
	Trajectory *timestep.Trajectory
	Mask       feature.DropMask

	// Sampled is the trajectory described by the Speaker to produce
	// the instruction of a synthetic example
	Sampled *timestep.Trajectory

	// Advantages and Returns of each step of a synthetic example,
	// zero for forced steps
	Advantages []float64
	Returns    []float64
}

// Decisions returns the number of unforced steps of the example
func (e Example) Decisions() int {
	n := 0
	for _, s := range e.Trajectory.Steps {
		if !s.Forced {
			n++
		}
	}
	return n
}

// Batch is a shuffled mix of real and synthetic examples
type Batch struct {
	Examples []Example

	// Dropped holds the errors of examples that could not be
	// assembled
	Dropped []error
}

// Counts returns the number of real and synthetic examples
func (b *Batch) Counts() (nReal, nSynthetic int) {
	for _, e := range b.Examples {
		if e.Synthetic {
			nSynthetic++
		} else {
			nReal++
		}
	}
	return nReal, nSynthetic
}

// Batch assembles the next batch of training examples. Examples that
// fail to assemble are dropped and recorded; invariant violations are
// returned.
func (t *Trainer) Batch() (*Batch, error) {
	b := &Batch{}
	for _, item := range t.data.Next(t.config.RealPerBatch) {
		ex, err := t.Real(item)
		if err != nil {
			b.Dropped = append(b.Dropped, err)
			continue
		}
		b.Examples = append(b.Examples, ex)
	}

	for i := 0; i < t.config.SyntheticPerBatch; i++ {
		ex, err := t.Synthetic(t.items[t.starter.Start().ID])
		if errors.Is(err, ErrInvariantViolation) {
			return nil, err
		} else if err != nil {
			b.Dropped = append(b.Dropped, err)
			continue
		}
		b.Examples = append(b.Examples, ex)
	}

	t.rng.Shuffle(len(b.Examples), func(i, j int) {
		b.Examples[i], b.Examples[j] = b.Examples[j], b.Examples[i]
	})
	return b, nil
}

// Real returns the imitation example of a human-annotated item
func (t *Trainer) Real(item dataset.Item) (Example, error) {
	if err := instruction.Validate(item.Instruction.Tokens(),
		t.config.Listener.Vocab); err != nil {
		return Example{}, errors.Wrapf(err, "real %v", item.ID)
	}
	traj, err := dataset.Demonstration(t.sim.NewSession(), item)
	if err != nil {
		return Example{}, err
	}
	return Example{
		ID:          item.ID,
		Instruction: item.Instruction,
		Trajectory:  traj,
	}, nil
}

// Synthetic samples a trajectory from the start of item under a new
// environmental dropout mask, describes it with the Speaker, and
// returns the Listener's rollout following that description from the
// start to the end of the sampled trajectory.
func (t *Trainer) Synthetic(item dataset.Item) (Example, error) {
	mask, err := feature.NewDropMask(t.config.Listener.Schema.Visual,
		t.config.EnvDrop, t.src)
	if err != nil {
		return Example{}, err
	}

	var sampled *timestep.Trajectory
	switch t.config.Sampler {
	case RandomWalk:
		sampled, err = t.randomWalk(item.Spec())
	default:
		var ep *policy.Episode
		ep, err = t.listener.Rollout(t.sim.NewSession(), item.Spec(),
			item.Instruction, policy.RolloutOptions{
				Mode: policy.Sample,
				Mask: mask,
				Src:  t.src,
			})
		if ep != nil {
			sampled = ep.Trajectory
		}
	}
	if err != nil {
		return Example{}, errors.Wrapf(err, "synthetic from %v", item.ID)
	}

	instr, err := t.speaker.Generate(sampled, mask, speaker.GenerateOptions{
		Strategy: t.config.SpeakerStrategy,
		Src:      t.src,
	})
	if err != nil {
		return Example{}, errors.Wrapf(err, "synthetic from %v", item.ID)
	}

	spec := environment.EpisodeSpec{
		ID:      uuid.NewString(),
		Scan:    sampled.Scan,
		Start:   sampled.Start(),
		Goal:    sampled.End(),
		Heading: sampled.Heading(),
	}
	ep, err := t.listener.Rollout(t.sim.NewSession(), spec, instr,
		policy.RolloutOptions{
			Mode: policy.Sample,
			Mask: mask,
			Src:  t.src,
		})
	if err != nil {
		return Example{}, errors.Wrapf(err, "synthetic from %v", item.ID)
	}

	adv, ret, err := t.advantages(ep)
	if err != nil {
		return Example{}, errors.Wrapf(err, "synthetic from %v", item.ID)
	}
	return Example{
		ID:          spec.ID,
		Synthetic:   true,
		Instruction: instr,
		Trajectory:  ep.Trajectory,
		Mask:        mask,
		Sampled:     sampled,
		Advantages:  adv,
		Returns:     ret,
	}, nil
}

// advantages computes the advantages and discounted returns of each
// step of an episode using the Critic as baseline. Returns of episodes
// cut off by the step budget are bootstrapped with the value of the
// state at which the stop was forced.
func (t *Trainer) advantages(ep *policy.Episode) ([]float64, []float64,
	error) {
	values, err := t.critic.Values(ep.HTilde)
	if err != nil {
		return nil, nil, err
	}
	buf, err := gae.New(1.0, t.config.Gamma, false)
	if err != nil {
		return nil, nil, err
	}

	steps := ep.Trajectory.Steps
	lastVal := 0.0
	for i, s := range steps {
		if s.Forced {
			lastVal = values[i]
			break
		}
		buf.Store(s.Reward, values[i])
	}
	buf.FinishPath(lastVal)
	adv, ret, err := buf.Get()
	if err != nil {
		return nil, nil, err
	}

	// Forced steps carry no learning signal
	padded := make([]float64, len(steps))
	paddedRet := make([]float64, len(steps))
	copy(padded, adv)
	copy(paddedRet, ret)
	return padded, paddedRet, nil
}

// randomWalk walks from the start of spec to uniformly random
// unvisited neighbours for a uniformly random number of moves, then
// stops
func (t *Trainer) randomWalk(spec environment.EpisodeSpec) (
	*timestep.Trajectory, error) {
	env := t.sim.NewSession()
	ts, err := env.Reset(spec)
	if err != nil {
		return nil, err
	}

	moves := 1 + t.rng.Intn(t.config.WalkLength)
	traj := &timestep.Trajectory{ID: uuid.NewString(), Scan: spec.Scan}
	visited := map[string]bool{ts.Observation.ID: true}
	for len(traj.Steps) < moves {
		obs := ts.Observation
		weights := make([]float64, len(obs.Candidates))
		open := false
		for i, c := range obs.Candidates {
			if !visited[c.ViewpointID] {
				weights[i] = 1
				open = true
			}
		}
		if !open {
			break
		}

		a := int(distuv.NewCategorical(weights, t.src).Rand())
		var done bool
		ts, done, err = env.Step(a)
		if err != nil {
			return nil, err
		}
		traj.Steps = append(traj.Steps, timestep.Step{
			Observation: obs,
			Action:      a,
			Reward:      ts.Reward,
		})
		visited[ts.Observation.ID] = true
		if done {
			traj.BudgetExceeded = true
			return traj, nil
		}
	}

	obs := ts.Observation
	traj.Steps = append(traj.Steps, timestep.Step{
		Observation: obs,
		Action:      obs.StopIndex(),
	})
	return traj, nil
}
