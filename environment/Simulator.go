package environment

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/timestep"
)

// Simulator holds the navigation graphs and precomputed features of a
// set of scans. It is read-only once constructed and can be shared by
// any number of concurrent Sessions.
type Simulator struct {
	graphs map[string]*Graph
	store  feature.Store
	task   Task
	limit  StepLimit
}

// NewSimulator returns a new Simulator. Episodes are limited to
// maxActions actions, including the final stop.
func NewSimulator(graphs []*Graph, store feature.Store, task Task,
	maxActions int) (*Simulator, error) {
	if maxActions < 1 {
		return nil, fmt.Errorf("newSimulator: episodes must allow at least "+
			"one action, have(%v)", maxActions)
	}
	s := &Simulator{
		graphs: make(map[string]*Graph, len(graphs)),
		store:  store,
		task:   task,
		limit:  NewStepLimit(maxActions),
	}
	for _, g := range graphs {
		if _, ok := s.graphs[g.Scan()]; ok {
			return nil, fmt.Errorf("newSimulator: duplicate scan %v",
				g.Scan())
		}
		s.graphs[g.Scan()] = g
	}
	return s, nil
}

// Schema returns the feature schema of observations
func (s *Simulator) Schema() feature.Schema {
	return s.store.Schema()
}

// Task returns the reward scheme of the Simulator
func (s *Simulator) Task() Task {
	return s.task
}

// MaxActions returns the action budget of each episode
func (s *Simulator) MaxActions() int {
	return s.limit.Steps()
}

// Graph returns the navigation graph of a scan
func (s *Simulator) Graph(scan string) (*Graph, error) {
	g, ok := s.graphs[scan]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownViewpoint, "unknown scan %v", scan)
	}
	return g, nil
}

// Scans returns the sorted scan ids of the Simulator
func (s *Simulator) Scans() []string {
	scans := make([]string, 0, len(s.graphs))
	for scan := range s.graphs {
		scans = append(scans, scan)
	}
	sort.Strings(scans)
	return scans
}

// Observe returns the observation of an agent standing at viewpoint in
// scan facing heading at zero elevation
func (s *Simulator) Observe(scan, viewpoint string,
	heading float64) (timestep.Viewpoint, error) {
	g, err := s.Graph(scan)
	if err != nil {
		return timestep.Viewpoint{}, err
	}
	if !g.Has(viewpoint) {
		return timestep.Viewpoint{}, errors.Wrapf(ErrUnknownViewpoint,
			"%v/%v", scan, viewpoint)
	}

	pano, err := s.store.Panorama(viewpoint)
	if err != nil {
		return timestep.Viewpoint{}, errors.Wrapf(err, "observe %v",
			viewpoint)
	}
	for i := range pano {
		pano[i] = pano[i].WithAngle(
			normalizeAngle(feature.ViewHeading(i)-heading),
			feature.ViewElevation(i),
		)
	}

	here, _ := g.Position(viewpoint)
	neighbours := g.Neighbours(viewpoint)
	cands := make([]timestep.Candidate, 0, len(neighbours))
	for _, n := range neighbours {
		there, _ := g.Position(n)
		absHeading, elevation := headingTo(here, there)
		view := viewIndex(absHeading, elevation)

		b, err := s.store.Lookup(viewpoint, view)
		if err != nil {
			return timestep.Viewpoint{}, errors.Wrapf(err, "observe %v",
				viewpoint)
		}
		relHeading := normalizeAngle(absHeading - heading)
		cands = append(cands, timestep.Candidate{
			ViewpointID: n,
			Heading:     relHeading,
			Elevation:   elevation,
			View:        view,
			Distance:    g.Euclidean(viewpoint, n),
			Features:    b.WithAngle(relHeading, elevation),
		})
	}

	return timestep.Viewpoint{
		ID:         viewpoint,
		Scan:       scan,
		Heading:    heading,
		Panorama:   pano,
		Candidates: cands,
	}, nil
}

// viewIndex returns the discretized view in which a direction appears
func viewIndex(heading, elevation float64) int {
	step := math.Pi / 6
	h := int(math.Round(heading/step)) % 12
	if h < 0 {
		h += 12
	}
	e := int(math.Round(elevation/step)) + 1
	if e < 0 {
		e = 0
	} else if e > 2 {
		e = 2
	}
	return 12*e + h
}

// NewSession returns a new Environment running episodes in the
// Simulator
func (s *Simulator) NewSession() *Session {
	return &Session{sim: s}
}

// Session is a single navigation episode in a Simulator. A Session is
// not safe for concurrent use, but separate Sessions are independent.
type Session struct {
	sim   *Simulator
	spec  EpisodeSpec
	graph *Graph

	current timestep.TimeStep
	path    []string
	done    bool
}

// Reset implements the Environment interface
func (s *Session) Reset(spec EpisodeSpec) (timestep.TimeStep, error) {
	g, err := s.sim.Graph(spec.Scan)
	if err != nil {
		return timestep.TimeStep{}, err
	}
	dist, err := g.Distance(spec.Start, spec.Goal)
	if err != nil {
		return timestep.TimeStep{}, errors.Wrapf(err, "reset %v", spec.ID)
	}
	if math.IsInf(dist, 1) {
		return timestep.TimeStep{}, errors.Errorf("reset %v: goal %v "+
			"unreachable from %v", spec.ID, spec.Goal, spec.Start)
	}

	obs, err := s.sim.Observe(spec.Scan, spec.Start, spec.Heading)
	if err != nil {
		return timestep.TimeStep{}, err
	}

	s.spec = spec
	s.graph = g
	s.path = []string{spec.Start}
	s.done = false
	s.current = timestep.New(timestep.First, 0, obs, dist, 0)
	return s.current, nil
}

// Step implements the Environment interface
func (s *Session) Step(action int) (timestep.TimeStep, bool, error) {
	if s.graph == nil {
		return timestep.TimeStep{}, true, errors.New("step: session was " +
			"never reset")
	}
	if s.done {
		return s.current, true, ErrEpisodeOver
	}

	obs := s.current.Observation
	if action < 0 || action > obs.StopIndex() {
		return s.current, false, errors.Wrapf(ErrInvalidAction,
			"action %v with %v candidates", action, len(obs.Candidates))
	}

	prevDist := s.current.Distance
	number := s.current.Number + 1

	if action == obs.StopIndex() {
		r := s.sim.task.GetReward(prevDist, prevDist, true)
		s.current = timestep.New(timestep.Last, r, obs, prevDist, number)
		s.done = true
		return s.current, true, nil
	}

	next := obs.Candidates[action]
	absHeading := normalizeAngle(obs.Heading + next.Heading)
	nextObs, err := s.sim.Observe(s.spec.Scan, next.ViewpointID, absHeading)
	if err != nil {
		return s.current, false, err
	}
	dist, err := s.graph.Distance(next.ViewpointID, s.spec.Goal)
	if err != nil {
		return s.current, false, err
	}

	r := s.sim.task.GetReward(prevDist, dist, false)
	s.current = timestep.New(timestep.Mid, r, nextObs, dist, number)
	s.path = append(s.path, next.ViewpointID)
	s.done = s.sim.limit.End(&s.current)
	return s.current, s.done, nil
}

// Fork returns an independent copy of the Session in its current
// state. Stepping either Session does not affect the other.
func (s *Session) Fork() *Session {
	f := *s
	f.path = append([]string(nil), s.path...)
	return &f
}

// Spec implements the Environment interface
func (s *Session) Spec() EpisodeSpec {
	return s.spec
}

// Current returns the most recent TimeStep
func (s *Session) Current() timestep.TimeStep {
	return s.current
}

// Candidates implements the Environment interface
func (s *Session) Candidates() []timestep.Candidate {
	return s.current.Observation.Candidates
}

// Path returns the viewpoints visited so far, including the start
func (s *Session) Path() []string {
	return append([]string(nil), s.path...)
}

// TeacherAction returns the action that follows a shortest path to the
// goal, or stop if the agent is at the goal
func (s *Session) TeacherAction() (int, error) {
	obs := s.current.Observation
	next, err := s.graph.NextHop(obs.ID, s.spec.Goal)
	if err != nil {
		return 0, err
	}
	if next == obs.ID {
		return obs.StopIndex(), nil
	}
	ix := obs.Candidate(next)
	if ix < 0 {
		return 0, errors.Errorf("teacherAction: %v is not a candidate of %v",
			next, obs.ID)
	}
	return ix, nil
}

// GetReward implements the Task interface
func (s *Session) GetReward(prevDist, dist float64, stopped bool) float64 {
	return s.sim.task.GetReward(prevDist, dist, stopped)
}

// AtGoal implements the Task interface
func (s *Session) AtGoal(dist float64) bool {
	return s.sim.task.AtGoal(dist)
}
