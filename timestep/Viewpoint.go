package timestep

import "github.com/samuelfneumann/vlnav/feature"

// Candidate is a navigable neighbouring viewpoint, described from the
// agent's current position.
type Candidate struct {
	ViewpointID string

	// Heading and Elevation of the candidate relative to the agent
	Heading   float64
	Elevation float64

	// View is the discretized view index in which the candidate appears
	View int

	// Distance is the euclidean distance to the candidate
	Distance float64

	Features feature.Bundle
}

// Viewpoint is the observation an agent receives at a single location.
type Viewpoint struct {
	ID        string
	Scan      string
	Heading   float64
	Elevation float64

	// Panorama holds one feature Bundle per discretized view, with
	// angle encodings relative to the agent's heading
	Panorama []feature.Bundle

	// Candidates are the navigable neighbours, ordered by viewpoint id.
	// The stop action is not a Candidate; it always follows the last
	// Candidate in an action distribution.
	Candidates []Candidate
}

// StopIndex returns the action index of the stop action at this
// viewpoint.
func (v Viewpoint) StopIndex() int {
	return len(v.Candidates)
}

// NumActions returns the number of actions available at the viewpoint,
// including stop.
func (v Viewpoint) NumActions() int {
	return len(v.Candidates) + 1
}

// Candidate returns the index of the Candidate leading to viewpoint id,
// or -1 if id is not navigable from v.
func (v Viewpoint) Candidate(id string) int {
	for i, c := range v.Candidates {
		if c.ViewpointID == id {
			return i
		}
	}
	return -1
}

// ActionAngle returns the angle encoding of taking action a from the
// viewpoint. Stopping is encoded as all zeros.
func (v Viewpoint) ActionAngle(a, dim int) []float64 {
	if a < 0 || a >= len(v.Candidates) {
		return make([]float64, dim)
	}
	return append([]float64(nil), v.Candidates[a].Features.Angle...)
}

// ActionFeatures returns the feature Bundle of taking action a from the
// viewpoint. Stopping is described by the zero Bundle.
func (v Viewpoint) ActionFeatures(a int, s feature.Schema) feature.Bundle {
	if a < 0 || a >= len(v.Candidates) {
		return feature.Zero(s)
	}
	return v.Candidates[a].Features
}
