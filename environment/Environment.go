// Package environment implements the navigation environment: the
// navigation graphs of scans, episodes over them, the rewards of the
// navigation task, and enders that cap episode lengths
package environment

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/timestep"
)

var (
	// ErrInvalidAction is returned when an action index is outside of
	// the current action distribution
	ErrInvalidAction = errors.New("invalid action")

	// ErrUnknownViewpoint is returned for viewpoints or scans missing
	// from the navigation graphs
	ErrUnknownViewpoint = errors.New("unknown viewpoint")

	// ErrEpisodeOver is returned when stepping a finished episode
	ErrEpisodeOver = errors.New("episode is over")
)

// EpisodeSpec specifies a single navigation episode
type EpisodeSpec struct {
	ID      string
	Scan    string
	Start   string
	Goal    string
	Heading float64
}

// Task implements the reward scheme for taking actions in the
// environment
type Task interface {
	// GetReward returns the reward of moving from a viewpoint at
	// distance prevDist from the goal to one at distance dist, or of
	// stopping at distance dist if stopped is set.
	GetReward(prevDist, dist float64, stopped bool) float64

	// AtGoal returns whether stopping at distance dist from the goal
	// is a success
	AtGoal(dist float64) bool
}

// Ender determines when episodes should end
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Environment implements a navigation episode in a simulated scan.
//
// Actions index into the action distribution of the current
// observation: indices [0, len(Candidates)) move to a candidate and
// index len(Candidates) stops.
type Environment interface {
	Task
	Reset(spec EpisodeSpec) (timestep.TimeStep, error) // Starts an episode
	Step(action int) (timestep.TimeStep, bool, error)  // Done on stop or budget
	Spec() EpisodeSpec

	// Candidates returns the navigable neighbours of the current
	// viewpoint
	Candidates() []timestep.Candidate
}
