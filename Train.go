package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/experiment"
	"github.com/samuelfneumann/vlnav/experiment/checkpointer"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
	"github.com/samuelfneumann/vlnav/experiment/trackers"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/utils/progressbar"
	"github.com/spf13/cobra"
)

var (
	trainIters       int
	checkpointEvery  int
	checkpointNaming string
	outDir           string
	resumeFile       string
	valFile          string
	trackEvery       int
	seed             uint64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a listener by back-translation",
	Long: `Train a listener on the human-annotated pairs of --data mixed
with speaker-generated pairs. Every run writes its configuration,
vocabulary, tracked losses, checkpoints and log to a new directory
under --out named by a random run id. Training can be resumed from any
checkpoint with --resume; interrupting a run writes a final checkpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("iters") {
			c.Iterations = trainIters
		}
		if cmd.Flags().Changed("checkpoint-every") {
			c.CheckpointEvery = checkpointEvery
		}
		if cmd.Flags().Changed("seed") {
			c.TrainerConf.Seed = seed
			c.TrainerConf.Listener.Seed = seed
			c.TrainerConf.Speaker.Seed = seed + 1
		}
		if dataFile == "" {
			return errors.New("train: --data is required")
		}

		sim, closer, err := createSimulator(c.EnvConf)
		if err != nil {
			return err
		}
		defer closer.Close()

		entries, err := readEntries(dataFile)
		if err != nil {
			return err
		}
		var vocab *instruction.Vocab
		if vocabFile != "" {
			vocab, err = loadVocab(vocabFile)
			if err != nil {
				return err
			}
		} else {
			vocab = instruction.BuildVocab(dataset.Sentences(entries),
				c.MinWordCount)
		}
		c.TrainerConf.Listener.Vocab = vocab.Len()
		c.TrainerConf.Speaker.Vocab = vocab.Len()
		if err := c.Validate(); err != nil {
			return err
		}

		tok := instruction.NewTokenizer(vocab, c.MaxInstructionLength)
		items, err := tokenizeItems(dataFile, entries, tok, sim)
		if err != nil {
			return err
		}
		data, err := dataset.New(items, c.TrainerConf.Seed)
		if err != nil {
			return err
		}
		trainer, err := backtranslate.New(c.TrainerConf, sim, data)
		if err != nil {
			return err
		}
		if resumeFile != "" {
			if err := restore(trainer, resumeFile); err != nil {
				return err
			}
			logger.Printf("resumed from %v at iteration %v", resumeFile,
				trainer.Iteration())
		}

		runDir := filepath.Join(outDir, uuid.NewString())
		if err := writeJSON(filepath.Join(runDir, "config.json"), c); err != nil {
			return err
		}
		if err := saveVocab(filepath.Join(runDir, "vocab.txt"),
			vocab); err != nil {
			return err
		}
		logFile, err := os.Create(filepath.Join(runDir, "train.log"))
		if err != nil {
			return errors.Wrap(err, "train")
		}
		defer logFile.Close()
		trainer.SetLogger(log.New(logFile, "backtranslate: ", log.LstdFlags))
		logger.Printf("run %v: training %v items for %v iterations", runDir,
			len(items), c.Iterations)

		var tracked []tracker.Tracker
		for _, comp := range []trackers.Component{trackers.Combined,
			trackers.Imitation, trackers.Reinforce, trackers.SpeakerLoss,
			trackers.Return} {
			l, err := trackers.NewLoss(filepath.Join(runDir,
				string(comp)+".bin"), comp)
			if err != nil {
				return err
			}
			tracked = append(tracked, tracker.Every(l, trackEvery))
		}

		var checks []checkpointer.Checkpointer
		if c.CheckpointEvery > 0 {
			name, err := checkpointer.Naming(checkpointNaming,
				filepath.Join(runDir, "trainer"), ".bin")
			if err != nil {
				return err
			}
			check, err := checkpointer.NewNStep(c.CheckpointEvery, trainer,
				name)
			if err != nil {
				return err
			}
			checks = append(checks, check)
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		exp := experiment.NewTraining(trainer, c.Iterations, tracked, checks)
		exp.SetProgressBar(progressbar.New(os.Stderr, 40, c.Iterations))
		runErr := exp.Run(ctx)

		if err := exp.Save(); err != nil {
			return err
		}
		final := filepath.Join(runDir, "final.bin")
		if err := snapshot(trainer, final); err != nil {
			return err
		}
		logger.Printf("wrote %v at iteration %v", final, trainer.Iteration())

		if errors.Is(runErr, context.Canceled) {
			logger.Printf("training interrupted")
			return nil
		} else if runErr != nil {
			return runErr
		}

		if valFile != "" {
			valItems, err := loadItems(valFile, tok, sim)
			if err != nil {
				return err
			}
			eval := experiment.NewEvaluation(trainer.Listener(), sim, valItems,
				c.Eval)
			eval.SetSpeaker(trainer.Speaker())
			if err := eval.Run(ctx); err != nil {
				return err
			}
			logger.Printf("validation: %v", eval.Summary())
			return writeJSON(filepath.Join(runDir, "validation.json"),
				eval.Summary())
		}
		return nil
	},
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&dataFile, "data", "", "R2R training data JSON file")
	f.StringVar(&vocabFile, "vocab", "", "vocabulary file, built from "+
		"--data if unset")
	f.StringVar(&valFile, "val", "", "R2R validation data JSON file "+
		"evaluated after training")
	f.IntVar(&trainIters, "iters", 0, "total number of training iterations")
	f.IntVar(&checkpointEvery, "checkpoint-every", 0,
		"iterations between checkpoints")
	f.StringVar(&checkpointNaming, "checkpoint-naming",
		checkpointer.Enumerate, "checkpoint filenames, \""+
			checkpointer.Enumerate+"\" or \""+checkpointer.Timestamp+"\"")
	f.IntVar(&trackEvery, "track-every", 1,
		"iterations between tracked losses")
	f.StringVar(&outDir, "out", "runs", "directory of training runs")
	f.StringVar(&resumeFile, "resume", "", "checkpoint to resume from")
	f.Uint64Var(&seed, "seed", 0, "seed overriding the configuration")
}

// snapshot writes the training state of t to filename
func snapshot(t *backtranslate.Trainer, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	defer f.Close()
	if err := t.Snapshot(f); err != nil {
		return err
	}
	return f.Close()
}

// restore restores the training state of t from filename
func restore(t *backtranslate.Trainer, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "restore")
	}
	defer f.Close()
	return t.Restore(f)
}
