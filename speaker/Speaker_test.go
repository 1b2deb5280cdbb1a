package speaker_test

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"

	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/initwfn"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/solver"
	"github.com/samuelfneumann/vlnav/speaker"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/navtest"
	"golang.org/x/exp/rand"
)

const vocab = 10

func newSpeaker(t *testing.T) *speaker.Speaker {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	s, err := solver.NewDefaultAdam(0.02, 1)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := speaker.New(speaker.Config{
		Schema:        navtest.Schema(),
		Vocab:         vocab,
		WordEmbedding: 4,
		Hidden:        6,
		MaxLength:     8,
		Init:          init,
		Seed:          3,
	}, s)
	if err != nil {
		t.Fatal(err)
	}
	return sp
}

func demonstration(t *testing.T, path ...string) *timestep.Trajectory {
	env := navtest.Simulator(10).NewSession()
	traj, err := dataset.Demonstration(env, dataset.Item{
		ID:   "demo",
		Scan: navtest.Scan,
		Path: path,
	})
	if err != nil {
		t.Fatal(err)
	}
	return traj
}

func instr(t *testing.T, words ...int) instruction.Instruction {
	i, err := instruction.FromWords(words, vocab)
	if err != nil {
		t.Fatal(err)
	}
	return i
}

func TestTrajectoryLengths(t *testing.T) {
	sp := newSpeaker(t)

	// A trajectory that stops immediately has a single step
	single := demonstration(t, "A")
	if single.Len() != 1 {
		t.Fatalf("want(1) step have(%v)", single.Len())
	}
	if _, err := sp.Score(single, instr(t, 4, 5), nil); err != nil {
		t.Errorf("single step trajectory: %v", err)
	}
	if _, err := sp.Generate(single, nil, speaker.GenerateOptions{}); err != nil {
		t.Errorf("single step trajectory: %v", err)
	}

	empty := &timestep.Trajectory{ID: "empty"}
	if _, err := sp.Score(empty, instr(t, 4), nil); !errors.Is(err,
		speaker.ErrEmptyTrajectory) {
		t.Errorf("expected empty trajectory error, have(%v)", err)
	}
	if _, err := sp.Generate(empty, nil, speaker.GenerateOptions{}); !errors.Is(
		err, speaker.ErrEmptyTrajectory) {
		t.Errorf("expected empty trajectory error, have(%v)", err)
	}
}

func TestGenerate(t *testing.T) {
	sp := newSpeaker(t)
	traj := demonstration(t, "A", "B", "C")

	for _, opts := range []speaker.GenerateOptions{
		{Strategy: speaker.Greedy},
		{Strategy: speaker.Sample, Src: rand.NewSource(1)},
		{Strategy: speaker.Sample, Temperature: 0.5, Src: rand.NewSource(2)},
		{Strategy: speaker.Beam, BeamWidth: 3},
	} {
		out, err := sp.Generate(traj, nil, opts)
		if err != nil {
			t.Fatalf("strategy %v: %v", opts.Strategy, err)
		}
		if err := instruction.Validate(out.Tokens(), vocab); err != nil {
			t.Errorf("strategy %v: invalid instruction: %v", opts.Strategy,
				err)
		}
		if out.Len() > 8 {
			t.Errorf("strategy %v: instruction of length %v exceeds 8",
				opts.Strategy, out.Len())
		}
	}

	a, err := sp.Generate(traj, nil, speaker.GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := sp.Generate(traj, nil, speaker.GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("greedy generation is not deterministic")
	}
}

func TestTrainReducesLoss(t *testing.T) {
	sp := newSpeaker(t)
	pairs := []speaker.Pair{
		{Trajectory: demonstration(t, "A", "B", "C"),
			Instruction: instr(t, 4, 5, 6)},
		{Trajectory: demonstration(t, "A", "D", "E"),
			Instruction: instr(t, 7, 8, 9)},
	}

	first, skipped, err := sp.Train(pairs)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped pairs: %v", skipped)
	}
	last := first
	for i := 0; i < 60; i++ {
		last, _, err = sp.Train(pairs)
		if err != nil {
			t.Fatal(err)
		}
	}
	if last >= first {
		t.Errorf("loss did not decrease: first(%v) last(%v)", first, last)
	}

	// Fitted instructions score higher than swapped ones
	fit, err := sp.Score(pairs[0].Trajectory, pairs[0].Instruction, nil)
	if err != nil {
		t.Fatal(err)
	}
	swapped, err := sp.Score(pairs[0].Trajectory, pairs[1].Instruction, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fit <= swapped {
		t.Errorf("fitted score %v not above swapped score %v", fit, swapped)
	}
}

func TestTrainSkipsInvalidPairs(t *testing.T) {
	sp := newSpeaker(t)
	pairs := []speaker.Pair{
		{Trajectory: &timestep.Trajectory{}, Instruction: instr(t, 4)},
		{Trajectory: demonstration(t, "A", "B"), Instruction: instr(t, 4)},
	}
	_, skipped, err := sp.Train(pairs)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 1 {
		t.Errorf("want(1) skipped pair have(%v)", len(skipped))
	}

	if _, _, err := sp.Train(pairs[:1]); err == nil {
		t.Error("expected error without usable pairs")
	}
}

func TestGob(t *testing.T) {
	sp := newSpeaker(t)
	pair := speaker.Pair{Trajectory: demonstration(t, "A", "D"),
		Instruction: instr(t, 4, 6)}
	if _, _, err := sp.Train([]speaker.Pair{pair}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sp); err != nil {
		t.Fatal(err)
	}
	var restored speaker.Speaker
	if err := gob.NewDecoder(&buf).Decode(&restored); err != nil {
		t.Fatal(err)
	}

	// Identical updates after restoring, solver state included
	for _, s := range []*speaker.Speaker{sp, &restored} {
		if _, _, err := s.Train([]speaker.Pair{pair}); err != nil {
			t.Fatal(err)
		}
	}
	if !sp.Params().Equal(restored.Params()) {
		t.Error("restored speaker diverged after one update")
	}
}
