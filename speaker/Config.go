// Package speaker implements the speaker model, which describes
// navigation trajectories with natural-language instructions.
//
// The speaker encodes the sequence of actions of a trajectory, each
// attended against the panorama it was taken from, and decodes an
// instruction word by word while attending over the encoded actions.
package speaker

import (
	"encoding/json"
	"fmt"

	"github.com/samuelfneumann/vlnav/feature"
	"github.com/samuelfneumann/vlnav/initwfn"
)

// Config describes the architecture of a Speaker
type Config struct {
	Schema        feature.Schema
	Vocab         int // Number of tokens, including reserved tokens
	WordEmbedding int
	Hidden        int

	// MaxLength is the maximum length of generated instructions,
	// including the start and end tokens
	MaxLength int

	Init *initwfn.InitWFn
	Seed uint64
}

// DefaultConfig returns the standard architecture for a vocabulary of
// vocab tokens over features of schema s
func DefaultConfig(s feature.Schema, vocab int) Config {
	init, _ := initwfn.NewGlorotU(1.0)
	return Config{
		Schema:        s,
		Vocab:         vocab,
		WordEmbedding: 256,
		Hidden:        512,
		MaxLength:     80,
		Init:          init,
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
	if c.WordEmbedding < 1 {
		return fmt.Errorf("validate: word embedding must be positive, "+
			"have(%v)", c.WordEmbedding)
	}
	if c.Hidden < 2 {
		return fmt.Errorf("validate: hidden size must be at least 2, "+
			"have(%v)", c.Hidden)
	}
	if c.MaxLength < 3 {
		return fmt.Errorf("validate: max length must be at least 3, "+
			"have(%v)", c.MaxLength)
	}
	if c.Init == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return nil
}

func (c Config) encode() ([]byte, error) {
	return json.Marshal(c)
}

func decodeConfig(data []byte) (Config, error) {
	var c Config
	err := json.Unmarshal(data, &c)
	return c, err
}
