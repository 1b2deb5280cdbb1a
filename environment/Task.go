package environment

import "math"

// Progress is the navigation task rewarding progress towards the goal.
// Moving closer to the goal is rewarded with +1, moving away with -1,
// and stopping with +/- SuccessReward depending on whether the agent
// stopped within SuccessRadius of the goal.
type Progress struct {
	SuccessRadius float64
	SuccessReward float64
}

// NewProgress returns the standard progress task: success within 3
// meters of the goal, rewarded with +/- 2.
func NewProgress() Progress {
	return Progress{SuccessRadius: 3.0, SuccessReward: 2.0}
}

// GetReward implements the Task interface
func (p Progress) GetReward(prevDist, dist float64, stopped bool) float64 {
	if stopped {
		if p.AtGoal(dist) {
			return p.SuccessReward
		}
		return -p.SuccessReward
	}

	switch delta := prevDist - dist; {
	case delta > 0:
		return 1.0
	case delta < 0:
		return -1.0
	default:
		return 0.0
	}
}

// AtGoal implements the Task interface
func (p Progress) AtGoal(dist float64) bool {
	return dist < p.SuccessRadius
}

// Sparse is the navigation task rewarding only the final stop
type Sparse struct {
	Progress
}

// GetReward implements the Task interface
func (s Sparse) GetReward(prevDist, dist float64, stopped bool) float64 {
	if !stopped {
		return 0
	}
	return s.Progress.GetReward(prevDist, dist, stopped)
}

// headingTo returns the R2R heading (clockwise from +y) and elevation
// of the vector from a to b
func headingTo(a, b [3]float64) (heading, elevation float64) {
	dx, dy, dz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
	heading = math.Atan2(dx, dy)
	elevation = math.Atan2(dz, math.Hypot(dx, dy))
	return
}

// normalizeAngle wraps an angle into [-pi, pi)
func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
