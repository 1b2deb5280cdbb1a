package tracker

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/timestep"
	"gonum.org/v1/gonum/stat"
)

// Outcome is the result of a single navigation episode
type Outcome struct {
	ID   string
	Scan string
	Path []string
	Goal string

	// NavigationError is the shortest-path distance from the final
	// viewpoint to the goal, OracleError the smallest such distance
	// along the path
	NavigationError float64
	OracleError     float64

	Length         float64 // Length of the path taken
	ShortestLength float64 // Shortest-path distance from start to goal
	Steps          int

	Success       bool
	OracleSuccess bool
	SPL           float64

	BudgetExceeded bool
}

// NewOutcome scores the trajectory of an episode with goal in graph g.
// Success is decided by the AtGoal criterion of task.
func NewOutcome(g *environment.Graph, task environment.Task,
	traj *timestep.Trajectory, goal string) (Outcome, error) {
	if traj.Len() == 0 {
		return Outcome{}, fmt.Errorf("newOutcome: empty trajectory %v",
			traj.ID)
	}
	path := traj.Path()

	oracle := math.Inf(1)
	var final float64
	for _, vp := range path {
		d, err := g.Distance(vp, goal)
		if err != nil {
			return Outcome{}, fmt.Errorf("newOutcome: %v", err)
		}
		oracle = math.Min(oracle, d)
		final = d
	}
	shortest, err := g.Distance(path[0], goal)
	if err != nil {
		return Outcome{}, fmt.Errorf("newOutcome: %v", err)
	}

	o := Outcome{
		ID:              traj.ID,
		Scan:            traj.Scan,
		Path:            path,
		Goal:            goal,
		NavigationError: final,
		OracleError:     oracle,
		Length:          g.PathLength(path),
		ShortestLength:  shortest,
		Steps:           traj.Len(),
		Success:         task.AtGoal(final),
		OracleSuccess:   task.AtGoal(oracle),
		BudgetExceeded:  traj.BudgetExceeded,
	}
	if o.Success {
		o.SPL = 1
		if longest := math.Max(o.Length, o.ShortestLength); longest > 0 {
			o.SPL = o.ShortestLength / longest
		}
	}
	return o, nil
}

// Summary aggregates the Outcomes of an evaluation
type Summary struct {
	Episodes          int
	NavigationError   float64
	OracleError       float64
	SuccessRate       float64
	OracleSuccessRate float64
	SPL               float64
	Length            float64
	Steps             float64
}

// Summarize returns the mean metrics over outcomes
func Summarize(outcomes []Outcome) Summary {
	if len(outcomes) == 0 {
		return Summary{}
	}

	n := len(outcomes)
	ne, oe := make([]float64, n), make([]float64, n)
	sr, osr := make([]float64, n), make([]float64, n)
	spl, length, steps := make([]float64, n), make([]float64, n),
		make([]float64, n)
	for i, o := range outcomes {
		ne[i], oe[i] = o.NavigationError, o.OracleError
		sr[i], osr[i] = indicator(o.Success), indicator(o.OracleSuccess)
		spl[i], length[i] = o.SPL, o.Length
		steps[i] = float64(o.Steps)
	}

	return Summary{
		Episodes:          n,
		NavigationError:   stat.Mean(ne, nil),
		OracleError:       stat.Mean(oe, nil),
		SuccessRate:       stat.Mean(sr, nil),
		OracleSuccessRate: stat.Mean(osr, nil),
		SPL:               stat.Mean(spl, nil),
		Length:            stat.Mean(length, nil),
		Steps:             stat.Mean(steps, nil),
	}
}

// String returns the summary in the format of a results table row
func (s Summary) String() string {
	return fmt.Sprintf("episodes=%v NE=%.3f OE=%.3f SR=%.3f OSR=%.3f "+
		"SPL=%.3f length=%.3f steps=%.2f", s.Episodes, s.NavigationError,
		s.OracleError, s.SuccessRate, s.OracleSuccessRate, s.SPL,
		s.Length, s.Steps)
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
