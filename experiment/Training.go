package experiment

import (
	"context"

	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/experiment/checkpointer"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
	"github.com/samuelfneumann/vlnav/utils/progressbar"
)

// Training is an Experiment that trains a Listener by back-translation
// for a fixed number of iterations, tracking the statistics of every
// iteration and checkpointing the trainer along the way.
type Training struct {
	trainer       *backtranslate.Trainer
	iterations    int
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
	bar           *progressbar.ProgressBar
}

// NewTraining creates and returns a new training experiment. The
// iterations parameter determines how many iterations the trainer is
// run for in total, counting iterations completed before a restore.
func NewTraining(t *backtranslate.Trainer, iterations int,
	trackers []tracker.Tracker,
	checkpointers []checkpointer.Checkpointer) *Training {
	return &Training{
		trainer:       t,
		iterations:    iterations,
		trackers:      trackers,
		checkpointers: checkpointers,
	}
}

// SetProgressBar sets a progress bar that is advanced and displayed
// after every iteration
func (e *Training) SetProgressBar(p *progressbar.ProgressBar) {
	e.bar = p
}

// Register registers a tracker.Tracker with the Experiment so that
// data generated during the experiment can be tracked and saved
func (e *Training) Register(t tracker.Tracker) {
	e.trackers = append(e.trackers, t)
}

// Run trains until the iteration count is reached
func (e *Training) Run(ctx context.Context) error {
	if e.bar != nil {
		for i := 0; i < e.trainer.Iteration(); i++ {
			e.bar.Increment()
		}
		defer e.bar.Close()
	}

	for e.trainer.Iteration() < e.iterations {
		stats, err := e.trainer.Iterate(ctx)
		if err != nil {
			return err
		}
		e.track(tracker.Record{Iteration: stats.Iteration, Stats: &stats})

		for _, c := range e.checkpointers {
			if err := c.Checkpoint(e.trainer.Iteration()); err != nil {
				return err
			}
		}

		if e.bar != nil {
			e.bar.Increment()
			e.bar.SetStatus("λ=%.2f loss=%.4f", stats.Lambda, stats.Combined)
			e.bar.Display()
		}
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (e *Training) Save() error {
	for _, t := range e.trackers {
		if err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}

// track tracks the current datum by caching it in each Tracker
func (e *Training) track(r tracker.Record) {
	for _, t := range e.trackers {
		t.Track(r)
	}
}
