// Package experiment implements functionality for running training and
// evaluation experiments
package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/environment/envconfig"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments send each datum they generate to Trackers, which cache
// the data in RAM to be later saved to disk. The Save() function
// will then take all cached data and save it to disk. This is usually
// performed after an experiment has been run. The Run() method will
// run the experiment until it is complete or ctx is done.
//
// New Trackers can be registered with an Experiment through the
// constructor or through an Experiment's Register() function.
type Experiment interface {
	Run(ctx context.Context) error

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)
}

// Config represents a configuration of an experiment: the simulator,
// the trainer, and how long to train and evaluate.
type Config struct {
	EnvConf     envconfig.Config
	TrainerConf backtranslate.Config

	Iterations      int
	CheckpointEvery int // No checkpoints if 0

	// Instruction tokenization of the dataset
	MaxInstructionLength int
	MinWordCount         int

	Eval EvalOptions
}

// Validate returns an error if the Config cannot run an experiment
func (c Config) Validate() error {
	if err := c.EnvConf.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.TrainerConf.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.EnvConf.Schema != c.TrainerConf.Listener.Schema {
		return fmt.Errorf("validate: simulator and listener feature " +
			"schemas differ")
	}
	if c.EnvConf.MaxActions < c.TrainerConf.Listener.MaxSteps+1 {
		return fmt.Errorf("validate: simulator allows %v actions, the "+
			"listener needs %v", c.EnvConf.MaxActions,
			c.TrainerConf.Listener.MaxSteps+1)
	}
	if c.Iterations < 0 || c.CheckpointEvery < 0 {
		return fmt.Errorf("validate: negative iteration count")
	}
	if c.MaxInstructionLength < 3 {
		return fmt.Errorf("validate: instructions need at least 3 tokens")
	}
	if c.MaxInstructionLength != c.TrainerConf.Speaker.MaxLength {
		return fmt.Errorf("validate: instructions of up to %v tokens, "+
			"the speaker generates up to %v", c.MaxInstructionLength,
			c.TrainerConf.Speaker.MaxLength)
	}
	if err := c.Eval.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}
