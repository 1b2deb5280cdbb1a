package timestep

// Step is a single recorded decision of an episode
type Step struct {
	Observation Viewpoint

	// Action is an index into Observation's action distribution, where
	// Observation.StopIndex() denotes stop
	Action int
	Reward float64

	// Forced is set when the action was imposed by the step budget
	// rather than chosen by the agent
	Forced bool
}

// Stopped returns whether the step took the stop action
func (s Step) Stopped() bool {
	return s.Action == s.Observation.StopIndex()
}

// Trajectory is the recorded sequence of decisions of one episode.
// A complete Trajectory always ends with a stop Step.
type Trajectory struct {
	ID    string
	Scan  string
	Steps []Step

	// BudgetExceeded is set when the final stop was forced
	BudgetExceeded bool
}

// Len returns the number of recorded steps
func (t *Trajectory) Len() int {
	return len(t.Steps)
}

// Start returns the viewpoint id at which the trajectory starts
func (t *Trajectory) Start() string {
	if len(t.Steps) == 0 {
		return ""
	}
	return t.Steps[0].Observation.ID
}

// End returns the viewpoint id at which the trajectory ends
func (t *Trajectory) End() string {
	if len(t.Steps) == 0 {
		return ""
	}
	last := t.Steps[len(t.Steps)-1]
	if last.Stopped() {
		return last.Observation.ID
	}
	return last.Observation.Candidates[last.Action].ViewpointID
}

// Path returns the sequence of distinct consecutive viewpoint ids
// visited by the trajectory
func (t *Trajectory) Path() []string {
	path := make([]string, 0, len(t.Steps)+1)
	for _, s := range t.Steps {
		path = append(path, s.Observation.ID)
	}
	if end := t.End(); len(path) > 0 && end != path[len(path)-1] {
		path = append(path, end)
	}
	return path
}

// Heading returns the initial heading of the trajectory
func (t *Trajectory) Heading() float64 {
	if len(t.Steps) == 0 {
		return 0
	}
	return t.Steps[0].Observation.Heading
}

// Return returns the total undiscounted reward of the trajectory
func (t *Trajectory) Return() float64 {
	ret := 0.0
	for _, s := range t.Steps {
		ret += s.Reward
	}
	return ret
}
