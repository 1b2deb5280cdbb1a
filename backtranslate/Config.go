// Package backtranslate implements back-translation training of a
// navigation Listener. Every iteration mixes imitation learning on
// human-annotated pairs with reinforcement learning on trajectories
// described by a Speaker, observed under environmental dropout.
package backtranslate

import (
	"fmt"

	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/solver"
	"github.com/samuelfneumann/vlnav/speaker"
)

// Sampler determines how trajectories to be described by the Speaker
// are sampled
type Sampler string

const (
	// PolicySampler samples trajectories by following the instruction
	// of a real pair with the current Listener in sample mode
	PolicySampler Sampler = "Policy"

	// RandomWalk samples trajectories by walking uniformly at random
	// without revisiting viewpoints
	RandomWalk Sampler = "RandomWalk"
)

// Normalization determines how summed losses are normalized
type Normalization string

const (
	// Total normalizes by the number of decisions
	Total Normalization = "Total"

	// PerExample normalizes by the number of examples
	PerExample Normalization = "Batch"

	// None sums losses without normalization
	None Normalization = "None"
)

// MixSchedule determines the weight λ of the reinforcement learning
// loss at each iteration. λ anneals linearly from Start to End over
// Anneal iterations, and is fixed at Start if Anneal is 0.
type MixSchedule struct {
	Start  float64
	End    float64
	Anneal int
}

// FixedMix returns a MixSchedule with constant λ
func FixedMix(lambda float64) MixSchedule {
	return MixSchedule{Start: lambda, End: lambda}
}

// Lambda returns λ at iteration iter
func (m MixSchedule) Lambda(iter int) float64 {
	if m.Anneal <= 0 || iter <= 0 {
		return m.Start
	}
	if iter >= m.Anneal {
		return m.End
	}
	frac := float64(iter) / float64(m.Anneal)
	return m.Start + frac*(m.End-m.Start)
}

// Validate returns an error if the schedule leaves [0, 1]
func (m MixSchedule) Validate() error {
	if m.Start < 0 || m.Start > 1 || m.End < 0 || m.End > 1 {
		return fmt.Errorf("validate: λ must be in [0, 1], have(%v, %v)",
			m.Start, m.End)
	}
	if m.Anneal < 0 {
		return fmt.Errorf("validate: negative anneal length %v", m.Anneal)
	}
	return nil
}

// Config configures a Trainer
type Config struct {
	Listener policy.Config
	Speaker  speaker.Config

	PolicySolver  *solver.Solver
	CriticSolver  *solver.Solver
	SpeakerSolver *solver.Solver

	RealPerBatch          int
	SyntheticPerBatch     int
	SpeakerUpdatesPerIter int

	Mix     MixSchedule
	Sampler Sampler

	// WalkLength is the maximum number of moves of a random walk
	WalkLength int

	// EnvDrop is the probability of dropping a visual feature channel
	// in the environment of a synthetic episode
	EnvDrop float64

	// SpeakerStrategy is the strategy used to describe sampled
	// trajectories
	SpeakerStrategy speaker.Strategy

	Gamma       float64 // Discount factor of returns
	EntropyCoef float64
	Normalize   Normalization

	Seed uint64
}

// DefaultConfig returns the standard training configuration for
// features of schema s and a vocabulary of vocab tokens
func DefaultConfig(s feature.Schema, vocab int) Config {
	policySolver, _ := solver.NewAdam(1e-4, 1e-8, 0.9, 0.999, 1, 40)
	criticSolver, _ := solver.NewAdam(1e-4, 1e-8, 0.9, 0.999, 1, 40)
	speakerSolver, _ := solver.NewAdam(1e-4, 1e-8, 0.9, 0.999, 1, 40)
	return Config{
		Listener:              policy.DefaultConfig(s, vocab),
		Speaker:               speaker.DefaultConfig(s, vocab),
		PolicySolver:          policySolver,
		CriticSolver:          criticSolver,
		SpeakerSolver:         speakerSolver,
		RealPerBatch:          32,
		SyntheticPerBatch:     32,
		SpeakerUpdatesPerIter: 1,
		Mix:                   FixedMix(0.5),
		Sampler:               PolicySampler,
		WalkLength:            6,
		EnvDrop:               0.4,
		SpeakerStrategy:       speaker.Greedy,
		Gamma:                 0.9,
		EntropyCoef:           0.01,
		Normalize:             Total,
	}
}

// Validate returns an error if the configuration cannot be trained
func (c Config) Validate() error {
	if err := c.Listener.Validate(); err != nil {
		return fmt.Errorf("validate: listener: %v", err)
	}
	if err := c.Speaker.Validate(); err != nil {
		return fmt.Errorf("validate: speaker: %v", err)
	}
	if c.Listener.Schema != c.Speaker.Schema {
		return fmt.Errorf("validate: listener and speaker feature schemas " +
			"differ")
	}
	if c.Listener.Vocab != c.Speaker.Vocab {
		return fmt.Errorf("validate: listener and speaker vocabularies "+
			"differ: %v != %v", c.Listener.Vocab, c.Speaker.Vocab)
	}
	if c.PolicySolver == nil || c.CriticSolver == nil ||
		c.SpeakerSolver == nil {
		return fmt.Errorf("validate: missing solver")
	}
	if c.RealPerBatch < 0 || c.SyntheticPerBatch < 0 ||
		c.SpeakerUpdatesPerIter < 0 {
		return fmt.Errorf("validate: batch sizes and update counts must " +
			"be non-negative")
	}
	if c.RealPerBatch+c.SyntheticPerBatch == 0 {
		return fmt.Errorf("validate: empty batches")
	}
	if err := c.Mix.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	switch c.Sampler {
	case PolicySampler:
	case RandomWalk:
		if c.WalkLength < 1 {
			return fmt.Errorf("validate: walk length must be positive, "+
				"have(%v)", c.WalkLength)
		}
	default:
		return fmt.Errorf("validate: unknown sampler %v", c.Sampler)
	}
	if c.EnvDrop < 0 || c.EnvDrop >= 1 {
		return fmt.Errorf("validate: drop probability must be in [0, 1), "+
			"have(%v)", c.EnvDrop)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: ℽ must be in [0, 1], have(%v)", c.Gamma)
	}
	if c.EntropyCoef < 0 {
		return fmt.Errorf("validate: negative entropy coefficient %v",
			c.EntropyCoef)
	}
	switch c.Normalize {
	case Total, PerExample, None:
	default:
		return fmt.Errorf("validate: unknown normalization %v", c.Normalize)
	}
	return nil
}
