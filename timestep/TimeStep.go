// Package timestep implements timesteps of the agent-environment
// interaction, the observations an agent receives at each viewpoint,
// and recorded trajectories of whole episodes
package timestep

import (
	"fmt"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType StepType
	Reward   float64

	// Observation is the viewpoint the agent occupies after the step
	Observation Viewpoint

	// Distance is the shortest-path distance from the observation to
	// the episode goal
	Distance float64
	Number   int

	// BudgetExceeded is set when the episode was terminated by the step
	// budget rather than by a stop action
	BudgetExceeded bool
}

// New returns a new TimeStep
func New(t StepType, r float64, o Viewpoint, dist float64, n int) TimeStep {
	return TimeStep{
		StepType:    t,
		Reward:      r,
		Observation: o,
		Distance:    dist,
		Number:      n,
	}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Viewpoint: %v  |  " +
		"Distance: %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Observation.ID,
		t.Distance, t.Number)
}
