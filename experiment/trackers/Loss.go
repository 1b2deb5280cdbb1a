// Package trackers implements Trackers of training losses and
// evaluation metrics
package trackers

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
)

// Component is a training statistic tracked by a Loss Tracker
type Component string

const (
	Combined    Component = "Combined"
	Imitation   Component = "ML"
	Reinforce   Component = "RL"
	SpeakerLoss Component = "Speaker"

	// Return is the mean return of the synthetic rollouts
	Return Component = "Return"
)

// Loss tracks and saves one training statistic of each iteration in
// an experiment.
//
// Iterations whose listener update was skipped are tracked as NaN for
// the Combined component, so that saved data stays aligned with
// iteration numbers.
type Loss struct {
	component Component
	values    []float64
	filename  string
}

// NewLoss returns a new Loss Tracker of component c which will save
// its data at the specified location filename
func NewLoss(filename string, c Component) (*Loss, error) {
	switch c {
	case Combined, Imitation, Reinforce, SpeakerLoss, Return:
	default:
		return nil, fmt.Errorf("newLoss: no such component %v", c)
	}
	return &Loss{component: c, filename: filename}, nil
}

// Track caches the tracked component of a training Record. Evaluation
// Records are ignored.
func (l *Loss) Track(r tracker.Record) {
	if r.Stats == nil {
		return
	}
	l.values = append(l.values, l.value(r.Stats))
}

func (l *Loss) value(s *backtranslate.IterationStats) float64 {
	switch l.component {
	case Imitation:
		return s.ML
	case Reinforce:
		return s.RL
	case SpeakerLoss:
		return s.SpeakerLoss
	case Return:
		return s.Return
	default:
		if s.Skipped {
			return math.NaN()
		}
		return s.Combined
	}
}

// Data returns the tracked values
func (l *Loss) Data() []float64 {
	return append([]float64(nil), l.values...)
}

// Save saves the data tracked by the Loss Tracker to disk.
func (l *Loss) Save() error {
	return tracker.SaveData(l.filename, l.values)
}
