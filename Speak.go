package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/speaker"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
)

var (
	strategy   string
	beamWidth  int
	speakLimit int
	speakSeed  uint64
)

var speakCmd = &cobra.Command{
	Use:   "speak",
	Short: "Describe the paths of a dataset with a trained speaker",
	Long: `Generate an instruction with the speaker of a checkpoint for
the path of every item of --data, printing the item id, the speaker's
per-token score of the human instruction, the human instruction and the
generated one, separated by tabs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if dataFile == "" || vocabFile == "" || checkpointFile == "" {
			return errors.New("speak: --data, --vocab and --checkpoint are " +
				"required")
		}
		opts, err := generateOptions(strategy, beamWidth, speakSeed)
		if err != nil {
			return err
		}

		_, sp, err := loadCheckpoint(checkpointFile)
		if err != nil {
			return err
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
		tok := instruction.NewTokenizer(vocab, c.MaxInstructionLength)
		items, err := loadItems(dataFile, tok, sim)
		if err != nil {
			return err
		}
		if speakLimit > 0 && speakLimit < len(items) {
			items = items[:speakLimit]
		}

		out := cmd.OutOrStdout()
		for _, item := range items {
			traj, err := dataset.Demonstration(sim.NewSession(), item)
			if err != nil {
				return err
			}
			score, err := sp.Score(traj, item.Instruction, nil)
			if err != nil {
				return err
			}
			instr, err := sp.Generate(traj, nil, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%v\t%.4f\t%v\t%v\n", item.ID,
				score/float64(item.Instruction.Len()-1),
				tok.Decode(item.Instruction), tok.Decode(instr))
		}
		return nil
	},
}

func init() {
	f := speakCmd.Flags()
	f.StringVar(&dataFile, "data", "", "R2R data JSON file")
	f.StringVar(&vocabFile, "vocab", "", "vocabulary file of the run")
	f.StringVar(&checkpointFile, "checkpoint", "", "trainer checkpoint")
	f.StringVar(&strategy, "strategy", "beam", "decoding strategy: greedy, "+
		"sample or beam")
	f.IntVar(&beamWidth, "beam-width", 4, "width of beam search")
	f.IntVar(&speakLimit, "n", 0, "number of items to describe, all if 0")
	f.Uint64Var(&speakSeed, "seed", 1, "seed of sampling")
}

// generateOptions returns the speaker options of a named strategy
func generateOptions(name string, width int,
	seed uint64) (speaker.GenerateOptions, error) {
	opts := speaker.GenerateOptions{
		BeamWidth: width,
		Src:       rand.NewSource(seed),
	}
	switch strings.ToLower(name) {
	case "greedy":
		opts.Strategy = speaker.Greedy
	case "sample":
		opts.Strategy = speaker.Sample
	case "beam":
		opts.Strategy = speaker.Beam
	default:
		return opts, errors.Errorf("generateOptions: no such strategy %v",
			name)
	}
	return opts, nil
}
