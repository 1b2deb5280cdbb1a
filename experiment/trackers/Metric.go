package trackers

import (
	"fmt"

	"github.com/samuelfneumann/vlnav/experiment/tracker"
)

// Metric is an evaluation metric tracked by a Metric Tracker
type Metric string

const (
	NavigationError Metric = "NE"
	OracleError     Metric = "OE"
	Success         Metric = "SR"
	OracleSuccess   Metric = "OSR"
	SPL             Metric = "SPL"
	Length          Metric = "Length"
	EpisodeLength   Metric = "Steps"
)

// MetricTracker tracks and saves one evaluation metric of each episode
// in an experiment. Success metrics are tracked as 0 or 1.
type MetricTracker struct {
	metric   Metric
	values   []float64
	filename string
}

// NewMetric returns a new Tracker of metric m which will save its data
// at the specified location filename
func NewMetric(filename string, m Metric) (*MetricTracker, error) {
	switch m {
	case NavigationError, OracleError, Success, OracleSuccess, SPL, Length,
		EpisodeLength:
	default:
		return nil, fmt.Errorf("newMetric: no such metric %v", m)
	}
	return &MetricTracker{metric: m, filename: filename}, nil
}

// Track caches the tracked metric of an evaluation Record. Training
// Records are ignored.
func (m *MetricTracker) Track(r tracker.Record) {
	if r.Outcome == nil {
		return
	}
	o := r.Outcome

	var v float64
	switch m.metric {
	case NavigationError:
		v = o.NavigationError
	case OracleError:
		v = o.OracleError
	case Success:
		v = indicator(o.Success)
	case OracleSuccess:
		v = indicator(o.OracleSuccess)
	case SPL:
		v = o.SPL
	case Length:
		v = o.Length
	case EpisodeLength:
		v = float64(o.Steps)
	}
	m.values = append(m.values, v)
}

// Data returns the tracked values
func (m *MetricTracker) Data() []float64 {
	return append([]float64(nil), m.values...)
}

// Save saves the data tracked by the MetricTracker to disk.
func (m *MetricTracker) Save() error {
	return tracker.SaveData(m.filename, m.values)
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
