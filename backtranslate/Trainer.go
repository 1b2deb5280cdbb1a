package backtranslate

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/solver"
	"github.com/samuelfneumann/vlnav/speaker"
	"golang.org/x/exp/rand"
)

// ErrInvariantViolation is returned when an action outside of the
// candidate set is chosen or recorded. Training halts on such errors.
var ErrInvariantViolation = policy.ErrInvariantViolation

// IterationStats describes a single training iteration
type IterationStats struct {
	Iteration int
	LossStats

	// Dropped is the number of examples that could not be assembled
	Dropped int

	// Return is the mean return of the synthetic rollouts
	Return float64

	// SpeakerLoss is the mean per-token loss of the last speaker
	// update, 0 if the speaker was not updated
	SpeakerLoss float64
}

// Trainer trains a Listener by back-translation.
//
// The Listener and its Critic are updated on the combined imitation
// and reinforcement learning loss with their own solvers. The Speaker
// is only run for inference on the Listener's behalf, in separate
// graphs, and is updated with its own solver on real pairs only.
type Trainer struct {
	config Config
	sim    *environment.Simulator
	data   *dataset.Dataset
	items  map[string]dataset.Item

	listener     *policy.Listener
	critic       *policy.Critic
	speaker      *speaker.Speaker
	policySolver *solver.Solver
	criticSolver *solver.Solver

	starter *environment.CategoricalStarter
	src     *rand.PCGSource
	rng     *rand.Rand

	iteration int
	logger    *log.Logger
}

// New returns a new Trainer of freshly initialized models training in
// sim on the items of data
func New(c Config, sim *environment.Simulator,
	data *dataset.Dataset) (*Trainer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if sim.Schema() != c.Listener.Schema {
		return nil, fmt.Errorf("new: simulator and listener feature " +
			"schemas differ")
	}
	if sim.MaxActions() < c.Listener.MaxSteps+1 {
		return nil, fmt.Errorf("new: simulator allows %v actions, the "+
			"listener needs %v", sim.MaxActions(), c.Listener.MaxSteps+1)
	}

	listener, err := policy.New(c.Listener)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	critic, err := policy.NewCritic(c.Listener)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	// Every model gets a solver with its own state
	policySolver, err := c.PolicySolver.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	criticSolver, err := c.CriticSolver.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	speakerSolver, err := c.SpeakerSolver.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	sp, err := speaker.New(c.Speaker, speakerSolver)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	src := &rand.PCGSource{}
	src.Seed(c.Seed)

	items := make(map[string]dataset.Item, data.Len())
	specs := make([]environment.EpisodeSpec, 0, data.Len())
	for _, item := range data.Items() {
		if _, ok := items[item.ID]; ok {
			return nil, fmt.Errorf("new: duplicate item %v", item.ID)
		}
		items[item.ID] = item
		specs = append(specs, item.Spec())
	}
	starter, err := environment.NewCategoricalStarter(specs, nil, src)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &Trainer{
		config:       c,
		sim:          sim,
		data:         data,
		items:        items,
		listener:     listener,
		critic:       critic,
		speaker:      sp,
		policySolver: policySolver,
		criticSolver: criticSolver,
		starter:      starter,
		src:          src,
		rng:          rand.New(src),
		logger:       log.New(os.Stderr, "backtranslate: ", log.LstdFlags),
	}, nil
}

// SetLogger sets the logger that dropped examples and iteration
// summaries are written to
func (t *Trainer) SetLogger(l *log.Logger) {
	t.logger = l
}

// Listener returns the Listener being trained
func (t *Trainer) Listener() *policy.Listener {
	return t.listener
}

// Critic returns the Critic being trained
func (t *Trainer) Critic() *policy.Critic {
	return t.critic
}

// Speaker returns the Speaker
func (t *Trainer) Speaker() *speaker.Speaker {
	return t.speaker
}

// Config returns the configuration of the Trainer
func (t *Trainer) Config() Config {
	return t.config
}

// Iteration returns the number of completed iterations
func (t *Trainer) Iteration() int {
	return t.iteration
}

// Lambda returns the mixing weight λ of the current iteration
func (t *Trainer) Lambda() float64 {
	return t.config.Mix.Lambda(t.iteration)
}

// Iterate performs a single training iteration: it assembles a batch,
// takes one Listener and Critic update on the combined loss of the
// batch, and then updates the Speaker on the real pairs of the batch.
func (t *Trainer) Iterate(ctx context.Context) (IterationStats, error) {
	if err := ctx.Err(); err != nil {
		return IterationStats{}, err
	}

	b, err := t.Batch()
	if err != nil {
		return IterationStats{}, fmt.Errorf("iterate: %w", err)
	}
	for _, err := range b.Dropped {
		t.logger.Printf("iteration %v: dropped example: %v", t.iteration,
			err)
	}

	stats := IterationStats{Iteration: t.iteration, Dropped: len(b.Dropped)}
	stats.LossStats, err = t.update(b, t.Lambda())
	if err != nil {
		return stats, fmt.Errorf("iterate: %w", err)
	}

	var pairs []speaker.Pair
	returns := 0.0
	for _, ex := range b.Examples {
		if ex.Synthetic {
			returns += ex.Trajectory.Return()
			continue
		}
		pairs = append(pairs, speaker.Pair{
			Trajectory:  ex.Trajectory,
			Instruction: ex.Instruction,
		})
	}
	if stats.Synthetic > 0 {
		stats.Return = returns / float64(stats.Synthetic)
	}

	if len(pairs) > 0 {
		for i := 0; i < t.config.SpeakerUpdatesPerIter; i++ {
			loss, skipped, err := t.speaker.Train(pairs)
			if err != nil {
				return stats, fmt.Errorf("iterate: speaker: %v", err)
			}
			for _, err := range skipped {
				t.logger.Printf("iteration %v: speaker skipped pair: %v",
					t.iteration, err)
			}
			stats.SpeakerLoss = loss
		}
	}

	t.logger.Printf("iteration %v: λ=%.3f ml=%.4f rl=%.4f combined=%.4f "+
		"real=%v synthetic=%v dropped=%v", t.iteration, stats.Lambda,
		stats.ML, stats.RL, stats.Combined, stats.Real, stats.Synthetic,
		stats.Dropped)
	t.iteration++
	return stats, nil
}

// Run runs iterations training iterations, calling after with the
// statistics of each. Run stops early if ctx is done or after returns
// an error.
func (t *Trainer) Run(ctx context.Context, iterations int,
	after func(IterationStats) error) error {
	for i := 0; i < iterations; i++ {
		stats, err := t.Iterate(ctx)
		if err != nil {
			return err
		}
		if after != nil {
			if err := after(stats); err != nil {
				return err
			}
		}
	}
	return nil
}
