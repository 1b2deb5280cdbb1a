// Package policy implements the navigation policy: an instruction
// encoder, an attention-based recurrent decoder scoring candidate
// viewpoints and the stop action, the critic used for advantage
// estimation, and rollouts of the policy in an environment.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/initwfn"
)

// Config describes the architecture of a Listener and its Critic
type Config struct {
	Schema          feature.Schema
	Vocab           int // Number of tokens, including reserved tokens
	WordEmbedding   int
	Hidden          int
	ActionEmbedding int
	CriticHidden    int

	// MaxSteps is the number of decisions after which a stop is forced
	MaxSteps int

	Init *initwfn.InitWFn
	Seed uint64
}

// DefaultConfig returns the standard architecture for a vocabulary of
// vocab tokens over features of schema s
func DefaultConfig(s feature.Schema, vocab int) Config {
	init, _ := initwfn.NewGlorotU(1.0)
	return Config{
		Schema:          s,
		Vocab:           vocab,
		WordEmbedding:   256,
		Hidden:          512,
		ActionEmbedding: 64,
		CriticHidden:    512,
		MaxSteps:        35,
		Init:            init,
	}
}

// Validate returns an error if the configuration cannot be built
func (c Config) Validate() error {
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Vocab < 5 {
		return fmt.Errorf("validate: vocabulary must hold at least one "+
			"word besides reserved tokens, have(%v)", c.Vocab)
	}
	if c.WordEmbedding < 1 || c.ActionEmbedding < 1 || c.CriticHidden < 1 {
		return fmt.Errorf("validate: embedding sizes must be positive")
	}
	if c.Hidden < 2 {
		return fmt.Errorf("validate: hidden size must be at least 2, "+
			"have(%v)", c.Hidden)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("validate: max steps must be positive, have(%v)",
			c.MaxSteps)
	}
	if c.Init == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return nil
}

// FeatureDim returns the length of a flattened feature Bundle
func (c Config) FeatureDim() int {
	return c.Schema.Dim()
}

func (c Config) encode() ([]byte, error) {
	return json.Marshal(c)
}

func decodeConfig(data []byte) (Config, error) {
	var c Config
	err := json.Unmarshal(data, &c)
	return c, err
}
