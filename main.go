// Command vlnav trains and evaluates instruction-following navigation
// agents by speaker back-translation.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/environment/envconfig"
	"github.com/samuelfneumann/vlnav/experiment"
	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/spf13/cobra"
)

var logger = log.New(os.Stderr, "vlnav: ", log.LstdFlags)

var rootCmd = &cobra.Command{
	Use:   "vlnav",
	Short: "Vision-and-language navigation with speaker back-translation",
	Long: `vlnav trains agents to follow natural-language navigation
instructions on Matterport3D navigation graphs. A listener is trained on
human-annotated instructions mixed with instructions that a speaker
generates for sampled trajectories under environmental dropout.`,
	SilenceUsage: true,
}

// Flags shared by several commands
var (
	configFile string
	dataFile   string
	vocabFile  string
)

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"experiment configuration JSON file")
	rootCmd.AddCommand(configCmd, trainCmd, evalCmd, speakCmd, renderCmd,
		featuresCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print a default experiment configuration",
	Long: `Print the default experiment configuration as JSON. The
connectivity files and feature store of the simulator must be filled in
before the configuration can be used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := feature.DefaultSchema()
		c := experiment.Config{
			EnvConf: envconfig.NewConfig(nil, "features.db", s,
				backtranslate.DefaultConfig(s, 0).Listener.MaxSteps+1),
			TrainerConf:          backtranslate.DefaultConfig(s, 0),
			Iterations:           80000,
			CheckpointEvery:      5000,
			MaxInstructionLength: 80,
			MinWordCount:         5,
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

// loadConfig reads the experiment configuration of the --config flag
func loadConfig() (experiment.Config, error) {
	var c experiment.Config
	if configFile == "" {
		return c, errors.New("loadConfig: --config is required")
	}
	f, err := os.Open(configFile)
	if err != nil {
		return c, errors.Wrap(err, "loadConfig")
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return c, errors.Wrapf(err, "loadConfig: %v", configFile)
	}
	return c, nil
}

// readEntries reads the R2R entries of a dataset file
func readEntries(path string) ([]dataset.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "readEntries")
	}
	defer f.Close()
	return dataset.ReadJSON(f)
}

// loadVocab reads a vocabulary written by saveVocab
func loadVocab(path string) (*instruction.Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "loadVocab")
	}
	defer f.Close()
	return instruction.LoadVocab(f)
}

func saveVocab(path string, v *instruction.Vocab) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "saveVocab")
	}
	defer f.Close()
	if err := v.Save(f); err != nil {
		return err
	}
	return f.Close()
}

// loadItems tokenizes the entries of a dataset file and drops items
// whose instructions do not tokenize or whose paths leave the
// navigation graphs of sim
func loadItems(path string, tok *instruction.Tokenizer,
	sim *environment.Simulator) ([]dataset.Item, error) {
	entries, err := readEntries(path)
	if err != nil {
		return nil, err
	}
	return tokenizeItems(path, entries, tok, sim)
}

// tokenizeItems tokenizes entries read from path, dropping items as
// loadItems does
func tokenizeItems(path string, entries []dataset.Entry,
	tok *instruction.Tokenizer, sim *environment.Simulator) ([]dataset.Item,
	error) {
	items, errs := dataset.Items(entries, tok)
	valid, pathErrs := dataset.Filter(sim.NewSession(), items)
	for _, err := range append(errs, pathErrs...) {
		logger.Printf("dropped item: %v", err)
	}
	if len(valid) == 0 {
		return nil, errors.Errorf("loadItems: no valid items in %v", path)
	}
	logger.Printf("loaded %v of %v items from %v", len(valid), len(items),
		path)
	return valid, nil
}

// createSimulator creates the simulator of c, whose feature store is
// released by the returned Closer
func createSimulator(c envconfig.Config) (*environment.Simulator,
	io.Closer, error) {
	sim, closer, err := c.Create()
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("loaded scans %v", sim.Scans())
	return sim, closer, nil
}

// writeJSON writes v as indented JSON to path
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "writeJSON")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "writeJSON")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writeJSON")
}

// fileExists returns whether a regular file exists at path
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
