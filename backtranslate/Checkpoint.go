package backtranslate

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/solver"
	"github.com/samuelfneumann/vlnav/speaker"
)

// snapshot is the serialized training state of a Trainer
type snapshot struct {
	Iteration    int
	Listener     *policy.Listener
	Critic       *policy.Critic
	Speaker      *speaker.Speaker
	PolicySolver *solver.Solver
	CriticSolver *solver.Solver
	Dataset      []byte
	Source       []byte
}

// Snapshot writes the full training state of the Trainer to w: all
// model parameters, all solver states, the position in the dataset,
// and the state of the random number generator. A Trainer restored
// from a snapshot continues training exactly as the original would.
func (t *Trainer) Snapshot(w io.Writer) error {
	data, err := t.data.MarshalBinary()
	if err != nil {
		return fmt.Errorf("snapshot: %v", err)
	}
	src, err := t.src.MarshalBinary()
	if err != nil {
		return fmt.Errorf("snapshot: %v", err)
	}

	s := snapshot{
		Iteration:    t.iteration,
		Listener:     t.listener,
		Critic:       t.critic,
		Speaker:      t.speaker,
		PolicySolver: t.policySolver,
		CriticSolver: t.criticSolver,
		Dataset:      data,
		Source:       src,
	}
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("snapshot: %v", err)
	}
	return nil
}

// Restore restores the training state of a snapshot written by a
// Trainer of the same configuration over the same dataset
func (t *Trainer) Restore(r io.Reader) error {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if s.Listener == nil || s.Critic == nil || s.Speaker == nil ||
		s.PolicySolver == nil || s.CriticSolver == nil {
		return fmt.Errorf("restore: incomplete snapshot")
	}
	if s.Speaker.Solver() == nil {
		return fmt.Errorf("restore: snapshot speaker has no solver")
	}
	if err := sameConfig("listener", s.Listener.Config(),
		t.listener.Config()); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := sameConfig("speaker", s.Speaker.Config(),
		t.speaker.Config()); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	if err := t.data.UnmarshalBinary(s.Dataset); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := t.src.UnmarshalBinary(s.Source); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	t.iteration = s.Iteration
	t.listener = s.Listener
	t.critic = s.Critic
	t.speaker = s.Speaker
	t.policySolver = s.PolicySolver
	t.criticSolver = s.CriticSolver
	return nil
}

// sameConfig returns an error if the snapshot configuration of a model
// differs from the one the Trainer was built with
func sameConfig(model string, snapshot, current interface{}) error {
	have, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	want, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if !bytes.Equal(have, want) {
		return fmt.Errorf("snapshot %v configuration %s does not match %s",
			model, have, want)
	}
	return nil
}

// Load reads a Listener from a snapshot written by Trainer.Snapshot,
// for evaluation without a Trainer
func Load(r io.Reader) (*policy.Listener, *speaker.Speaker, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, nil, fmt.Errorf("load: %v", err)
	}
	if s.Listener == nil || s.Speaker == nil {
		return nil, nil, fmt.Errorf("load: incomplete snapshot")
	}
	return s.Listener, s.Speaker, nil
}
