package experiment

import (
	"context"
	"fmt"
	"math"

	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/speaker"
)

// EvalOptions determine how a Listener is evaluated
type EvalOptions struct {
	// AvoidRevisit blocks moving back to visited viewpoints
	AvoidRevisit bool

	// MaxSteps overrides the Listener's step budget if positive
	MaxSteps int

	// Shortest replaces the Listener by the shortest-path teacher,
	// which bounds the metrics attainable in the simulator
	Shortest bool

	// BeamWidth, if positive, replaces the greedy rollout by a beam
	// search of that width
	BeamWidth int

	// SpeakerWeight ranks the paths found by beam search by
	// (1-w) * listener log-probability + w * speaker log-likelihood
	// of the instruction. Weights above 0 need a Speaker.
	SpeakerWeight float64
}

// Validate returns an error if the options are inconsistent
func (o EvalOptions) Validate() error {
	if o.BeamWidth < 0 {
		return fmt.Errorf("validate: negative beam width %v", o.BeamWidth)
	}
	if o.SpeakerWeight < 0 || o.SpeakerWeight > 1 {
		return fmt.Errorf("validate: speaker weight must be in [0, 1], "+
			"have(%v)", o.SpeakerWeight)
	}
	if o.SpeakerWeight > 0 && o.BeamWidth == 0 {
		return fmt.Errorf("validate: speaker reranking needs a beam search")
	}
	return nil
}

// Evaluation is an Experiment that runs a Listener greedily, or with a
// beam search, on every item of a dataset and scores the resulting
// trajectories. The Listener may be nil when evaluating the
// shortest-path teacher.
type Evaluation struct {
	listener *policy.Listener
	speaker  *speaker.Speaker
	sim      *environment.Simulator
	items    []dataset.Item
	opts     EvalOptions

	trackers []tracker.Tracker
	outcomes []tracker.Outcome
	episodes []*policy.Episode
}

// NewEvaluation creates and returns a new evaluation of l on items in
// sim
func NewEvaluation(l *policy.Listener, sim *environment.Simulator,
	items []dataset.Item, opts EvalOptions,
	trackers ...tracker.Tracker) *Evaluation {
	return &Evaluation{
		listener: l,
		sim:      sim,
		items:    items,
		opts:     opts,
		trackers: trackers,
	}
}

// SetSpeaker sets the Speaker that reranks the paths of a beam search
func (e *Evaluation) SetSpeaker(s *speaker.Speaker) {
	e.speaker = s
}

// Register registers a tracker.Tracker with the Experiment so that
// data generated during the experiment can be tracked and saved
func (e *Evaluation) Register(t tracker.Tracker) {
	e.trackers = append(e.trackers, t)
}

// Run runs a single episode for every item
func (e *Evaluation) Run(ctx context.Context) error {
	if err := e.opts.Validate(); err != nil {
		return fmt.Errorf("run: %v", err)
	}
	e.outcomes = e.outcomes[:0]
	e.episodes = e.episodes[:0]
	for i, item := range e.items {
		if err := ctx.Err(); err != nil {
			return err
		}

		o, ep, err := e.RunEpisode(item)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		e.outcomes = append(e.outcomes, o)
		e.episodes = append(e.episodes, ep)
		for _, t := range e.trackers {
			t.Track(tracker.Record{Iteration: i, Outcome: &o})
		}
	}
	return nil
}

// RunEpisode runs the Listener on a single item and scores its
// trajectory
func (e *Evaluation) RunEpisode(item dataset.Item) (tracker.Outcome,
	*policy.Episode, error) {
	spec := item.Spec()
	if e.opts.Shortest {
		traj, err := dataset.Shortest(e.sim.NewSession(), spec)
		if err != nil {
			return tracker.Outcome{}, nil, err
		}
		ep := &policy.Episode{Spec: spec, Trajectory: traj}
		return e.score(ep)
	}

	var ep *policy.Episode
	var err error
	if e.opts.BeamWidth > 0 {
		ep, err = e.search(item)
	} else {
		ep, err = e.listener.Rollout(e.sim.NewSession(), spec,
			item.Instruction, policy.RolloutOptions{
				Mode:         policy.Greedy,
				AvoidRevisit: e.opts.AvoidRevisit,
				MaxSteps:     e.opts.MaxSteps,
			})
	}
	if err != nil {
		return tracker.Outcome{}, nil, err
	}
	ep.Trajectory.ID = item.ID
	return e.score(ep)
}

// search runs a beam search of the Listener on item and returns the
// finished path that ranks highest
func (e *Evaluation) search(item dataset.Item) (*policy.Episode, error) {
	w := e.opts.SpeakerWeight
	if w > 0 && e.speaker == nil {
		return nil, fmt.Errorf("search %v: speaker weight %v without a "+
			"speaker", item.ID, w)
	}

	paths, err := e.listener.Search(e.sim.NewSession(), item.Spec(),
		item.Instruction, policy.SearchOptions{
			BeamWidth:    e.opts.BeamWidth,
			MaxSteps:     e.opts.MaxSteps,
			AvoidRevisit: e.opts.AvoidRevisit,
		})
	if err != nil {
		return nil, err
	}

	best, bestScore := -1, math.Inf(-1)
	for i, p := range paths {
		score := p.LogProb
		if w > 0 {
			s, err := e.speaker.Score(p.Episode.Trajectory, item.Instruction,
				nil)
			if err != nil {
				return nil, fmt.Errorf("search %v: %v", item.ID, err)
			}
			score = (1-w)*p.LogProb + w*s
		}
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("search %v: no finished paths", item.ID)
	}
	return paths[best].Episode, nil
}

// score returns the Outcome of an episode
func (e *Evaluation) score(ep *policy.Episode) (tracker.Outcome,
	*policy.Episode, error) {
	g, err := e.sim.Graph(ep.Spec.Scan)
	if err != nil {
		return tracker.Outcome{}, nil, err
	}
	o, err := tracker.NewOutcome(g, e.sim.Task(), ep.Trajectory, ep.Spec.Goal)
	return o, ep, err
}

// Outcomes returns the outcomes of the last run
func (e *Evaluation) Outcomes() []tracker.Outcome {
	return append([]tracker.Outcome(nil), e.outcomes...)
}

// Episodes returns the episodes of the last run
func (e *Evaluation) Episodes() []*policy.Episode {
	return append([]*policy.Episode(nil), e.episodes...)
}

// Summary returns the aggregate metrics of the last run
func (e *Evaluation) Summary() tracker.Summary {
	return tracker.Summarize(e.outcomes)
}

// Save saves all the data cached by the Trackers to disk
func (e *Evaluation) Save() error {
	for _, t := range e.trackers {
		if err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}
