package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/experiment"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
	"github.com/samuelfneumann/vlnav/experiment/trackers"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/render"
	"github.com/samuelfneumann/vlnav/speaker"
	"github.com/spf13/cobra"
)

var (
	checkpointFile string
	avoidRevisit   bool
	shortest       bool
	metricsDir     string
	renderDir      string
	evalBeam       int
	speakerWeight  float64
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a trained listener",
	Long: `Run the listener of a checkpoint greedily on every item of
--data and report navigation error, oracle error, success rate, oracle
success rate, SPL and path length. With --shortest, the shortest-path
teacher is evaluated instead, which bounds the attainable metrics.
With --beam, each episode is a beam search of that width, whose
finished paths are ranked by a mixture of listener log-probability and
the checkpoint speaker's log-likelihood of the instruction, weighted by
--speaker-weight. Per-episode metrics are saved to --metrics and trajectory plots to
--render if set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("avoid-revisit") {
			c.Eval.AvoidRevisit = avoidRevisit
		}
		if cmd.Flags().Changed("shortest") {
			c.Eval.Shortest = shortest
		}
		if cmd.Flags().Changed("beam") {
			c.Eval.BeamWidth = evalBeam
			c.Eval.SpeakerWeight = speakerWeight
		} else if cmd.Flags().Changed("speaker-weight") {
			c.Eval.SpeakerWeight = speakerWeight
		}
		if err := c.Eval.Validate(); err != nil {
			return errors.Wrap(err, "eval")
		}
		if dataFile == "" || vocabFile == "" {
			return errors.New("eval: --data and --vocab are required")
		}
		if checkpointFile == "" && !c.Eval.Shortest {
			return errors.New("eval: --checkpoint is required")
		}

		var listener *policy.Listener
		var spk *speaker.Speaker
		if !c.Eval.Shortest {
			listener, spk, err = loadCheckpoint(checkpointFile)
			if err != nil {
				return err
			}
		}
		sim, closer, err := createSimulator(c.EnvConf)
		if err != nil {
			return err
		}
		defer closer.Close()

		vocab, err := loadVocab(vocabFile)
		if err != nil {
			return err
		}
		if listener != nil && vocab.Len() != listener.Config().Vocab {
			return errors.Errorf("eval: vocabulary of %v tokens, listener "+
				"trained on %v", vocab.Len(), listener.Config().Vocab)
		}
		items, err := loadItems(dataFile,
			instruction.NewTokenizer(vocab, c.MaxInstructionLength), sim)
		if err != nil {
			return err
		}

		var metrics []*trackers.MetricTracker
		if metricsDir != "" {
			if err := os.MkdirAll(metricsDir, 0755); err != nil {
				return errors.Wrap(err, "eval")
			}
			for _, m := range []trackers.Metric{trackers.NavigationError,
				trackers.OracleError, trackers.Success, trackers.OracleSuccess,
				trackers.SPL, trackers.Length, trackers.EpisodeLength} {
				t, err := trackers.NewMetric(filepath.Join(metricsDir,
					string(m)+".bin"), m)
				if err != nil {
					return err
				}
				metrics = append(metrics, t)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		eval := experiment.NewEvaluation(listener, sim, items, c.Eval)
		eval.SetSpeaker(spk)
		for _, m := range metrics {
			eval.Register(m)
		}
		if err := eval.Run(ctx); err != nil {
			return err
		}
		if err := eval.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), eval.Summary())

		if renderDir != "" {
			return renderOutcomes(sim, eval.Outcomes(), renderDir)
		}
		return nil
	},
}

func init() {
	f := evalCmd.Flags()
	f.StringVar(&dataFile, "data", "", "R2R evaluation data JSON file")
	f.StringVar(&vocabFile, "vocab", "", "vocabulary file of the run")
	f.StringVar(&checkpointFile, "checkpoint", "", "trainer checkpoint")
	f.BoolVar(&avoidRevisit, "avoid-revisit", false,
		"never move back to visited viewpoints")
	f.BoolVar(&shortest, "shortest", false, "evaluate the shortest-path "+
		"teacher instead of a listener")
	f.StringVar(&metricsDir, "metrics", "", "directory of per-episode "+
		"metrics")
	f.StringVar(&renderDir, "render", "", "directory of trajectory plots")
	f.IntVar(&evalBeam, "beam", 0, "beam width of the listener, greedy "+
		"if 0")
	f.Float64Var(&speakerWeight, "speaker-weight", 0.95, "weight of the "+
		"speaker when ranking the paths of a beam search")
}

// loadCheckpoint reads the listener and speaker of a trainer
// checkpoint
func loadCheckpoint(filename string) (*policy.Listener, *speaker.Speaker,
	error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loadCheckpoint")
	}
	defer f.Close()
	return backtranslate.Load(f)
}

// renderOutcomes plots the path of every outcome to dir
func renderOutcomes(sim *environment.Simulator, outcomes []tracker.Outcome,
	dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "render")
	}
	opts := render.DefaultOptions()
	if p, ok := sim.Task().(environment.Progress); ok {
		opts.GoalRadius = p.SuccessRadius
	}
	for _, o := range outcomes {
		g, err := sim.Graph(o.Scan)
		if err != nil {
			return err
		}
		if err := render.SavePNG(filepath.Join(dir, o.ID+".png"), g, o.Path,
			o.Goal, opts); err != nil {
			return err
		}
	}
	return nil
}
