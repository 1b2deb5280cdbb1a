package environment

import "github.com/samuelfneumann/vlnav/timestep"

// StepLimit implements the Ender interface to end episodes once a
// number of actions have been taken
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// Steps returns the number of actions allowed per episode
func (s StepLimit) Steps() int {
	return s.episodeSteps
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode temrination. If the episode
// should be ended End() will modify the timestep so that its StepType
// field is timestep.Last and it is flagged as exceeding the budget
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if t.Number >= s.episodeSteps && !t.Last() {
		t.StepType = timestep.Last
		t.BudgetExceeded = true
		return true
	}
	return false
}
