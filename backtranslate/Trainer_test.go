package backtranslate_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/initwfn"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/policy"
	"github.com/samuelfneumann/vlnav/solver"
	"github.com/samuelfneumann/vlnav/speaker"
	"github.com/samuelfneumann/vlnav/utils/navtest"
)

const vocab = 10

func adam(t *testing.T, lr float64) *solver.Solver {
	s, err := solver.NewDefaultAdam(lr, 1)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func config(t *testing.T) backtranslate.Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	return backtranslate.Config{
		Listener: policy.Config{
			Schema:          navtest.Schema(),
			Vocab:           vocab,
			WordEmbedding:   8,
			Hidden:          16,
			ActionEmbedding: 4,
			CriticHidden:    8,
			MaxSteps:        4,
			Init:            init,
			Seed:            1,
		},
		Speaker: speaker.Config{
			Schema:        navtest.Schema(),
			Vocab:         vocab,
			WordEmbedding: 4,
			Hidden:        6,
			MaxLength:     6,
			Init:          init,
			Seed:          2,
		},
		PolicySolver:          adam(t, 0.02),
		CriticSolver:          adam(t, 0.02),
		SpeakerSolver:         adam(t, 0.02),
		RealPerBatch:          2,
		SyntheticPerBatch:     0,
		SpeakerUpdatesPerIter: 0,
		Mix:                   backtranslate.FixedMix(0.5),
		Sampler:               backtranslate.PolicySampler,
		WalkLength:            3,
		EnvDrop:               0.2,
		SpeakerStrategy:       speaker.Greedy,
		Gamma:                 0.9,
		EntropyCoef:           0.01,
		Normalize:             backtranslate.Total,
		Seed:                  5,
	}
}

func item(t *testing.T, id string, words []int, path ...string) dataset.Item {
	instr, err := instruction.FromWords(words, vocab)
	if err != nil {
		t.Fatal(err)
	}
	return dataset.Item{
		ID:          id,
		Scan:        navtest.Scan,
		Path:        path,
		Instruction: instr,
	}
}

func items(t *testing.T) []dataset.Item {
	return []dataset.Item{
		item(t, "abc", []int{4, 5, 6}, "A", "B", "C"),
		item(t, "ad", []int{7, 8, 9}, "A", "D"),
	}
}

func trainer(t *testing.T, c backtranslate.Config,
	all []dataset.Item) *backtranslate.Trainer {
	data, err := dataset.New(all, 1)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := backtranslate.New(c, navtest.Simulator(c.Listener.MaxSteps+1),
		data)
	if err != nil {
		t.Fatal(err)
	}
	tr.SetLogger(log.New(io.Discard, "", 0))
	return tr
}

func imitationLoss(t *testing.T, tr *backtranslate.Trainer,
	it dataset.Item) float64 {
	ex, err := tr.Real(it)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := tr.Loss(&backtranslate.Batch{
		Examples: []backtranslate.Example{ex},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	return stats.ML
}

// TestImitation fits two instructions leading to different paths from
// the same start, after which each path is more likely under its own
// instruction than under the other one
func TestImitation(t *testing.T) {
	tr := trainer(t, config(t), items(t))
	all := items(t)
	correct := all[0]
	mismatched := all[0]
	mismatched.Instruction = all[1].Instruction

	before := imitationLoss(t, tr, correct)
	ctx := context.Background()
	if err := tr.Run(ctx, 120, nil); err != nil {
		t.Fatal(err)
	}
	after := imitationLoss(t, tr, correct)
	if after < 0 {
		t.Errorf("negative imitation loss %v", after)
	}
	if after >= before {
		t.Errorf("imitation loss did not decrease: before(%v) after(%v)",
			before, after)
	}
	if other := imitationLoss(t, tr, mismatched); other <= after {
		t.Errorf("mismatched instruction loss %v not above correct "+
			"instruction loss %v", other, after)
	}
}

func TestMix(t *testing.T) {
	c := config(t)
	c.SyntheticPerBatch = 2
	c.Sampler = backtranslate.RandomWalk
	tr := trainer(t, c, items(t))

	b, err := tr.Batch()
	if err != nil {
		t.Fatal(err)
	}
	nReal, nSyn := b.Counts()
	if nReal != 2 || nSyn != 2 {
		t.Fatalf("want(2, 2) real and synthetic examples have(%v, %v): %v",
			nReal, nSyn, b.Dropped)
	}

	var prev backtranslate.LossStats
	for i, lambda := range []float64{0, 0.25, 0.5, 0.75, 1} {
		stats, err := tr.Loss(b, lambda)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Skipped {
			t.Fatalf("λ=%v: update skipped", lambda)
		}

		wml := (1 - lambda) * float64(nReal)
		wrl := lambda * float64(nSyn)
		want := (wml*stats.ML + wrl*stats.RL) / (wml + wrl)
		if math.Abs(stats.Combined-want) > 1e-9 {
			t.Errorf("λ=%v: combined want(%v) have(%v)", lambda, want,
				stats.Combined)
		}

		if i == 0 {
			if math.Abs(stats.Combined-stats.ML) > 1e-9 {
				t.Errorf("λ=0: combined %v is not the imitation loss %v",
					stats.Combined, stats.ML)
			}
			prev = stats
			continue
		}
		if math.Abs(stats.ML-prev.ML) > 1e-9 ||
			math.Abs(stats.RL-prev.RL) > 1e-9 {
			t.Errorf("λ=%v: component losses depend on λ", lambda)
		}

		// The combined loss moves monotonically from ML to RL
		if stats.RL >= stats.ML && stats.Combined < prev.Combined-1e-12 {
			t.Errorf("λ=%v: combined loss decreased towards larger RL loss",
				lambda)
		}
		if stats.RL < stats.ML && stats.Combined > prev.Combined+1e-12 {
			t.Errorf("λ=%v: combined loss increased towards smaller RL loss",
				lambda)
		}
		prev = stats
	}
	if math.Abs(prev.Combined-prev.RL) > 1e-9 {
		t.Errorf("λ=1: combined %v is not the RL loss %v", prev.Combined,
			prev.RL)
	}

	// Without weighted examples no update is taken
	var realOnly backtranslate.Batch
	for _, ex := range b.Examples {
		if !ex.Synthetic {
			realOnly.Examples = append(realOnly.Examples, ex)
		}
	}
	stats, err := tr.Loss(&realOnly, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Skipped {
		t.Error("expected skipped update for real examples at λ=1")
	}
}

func TestSyntheticExamples(t *testing.T) {
	for _, sampler := range []backtranslate.Sampler{
		backtranslate.PolicySampler, backtranslate.RandomWalk,
	} {
		c := config(t)
		c.Sampler = sampler
		tr := trainer(t, c, items(t))

		ex, err := tr.Synthetic(items(t)[0])
		if err != nil {
			t.Fatalf("%v: %v", sampler, err)
		}
		if !ex.Synthetic || ex.Sampled == nil {
			t.Errorf("%v: expected synthetic example with sampled path",
				sampler)
		}
		if err := instruction.Validate(ex.Instruction.Tokens(),
			vocab); err != nil {
			t.Errorf("%v: invalid synthetic instruction: %v", sampler, err)
		}
		if len(ex.Advantages) != ex.Trajectory.Len() ||
			len(ex.Returns) != ex.Trajectory.Len() {
			t.Errorf("%v: %v advantages and %v returns for %v steps",
				sampler, len(ex.Advantages), len(ex.Returns),
				ex.Trajectory.Len())
		}
		if len(ex.Mask) != navtest.Schema().Visual {
			t.Errorf("%v: drop mask of length %v", sampler, len(ex.Mask))
		}
	}
}

func TestSpeakerIsolation(t *testing.T) {
	c := config(t)
	c.SyntheticPerBatch = 2
	tr := trainer(t, c, items(t))

	speakerBefore := tr.Speaker().Params().Clone()
	listenerBefore := tr.Listener().Params().Clone()
	if _, err := tr.Iterate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !tr.Speaker().Params().Equal(speakerBefore) {
		t.Error("listener update changed the speaker")
	}
	if tr.Listener().Params().Equal(listenerBefore) {
		t.Error("listener was not updated")
	}

	// Speaker updates only touch the speaker
	c.SpeakerUpdatesPerIter = 1
	c.SyntheticPerBatch = 0
	c.Mix = backtranslate.FixedMix(1)
	tr = trainer(t, c, items(t))
	listenerBefore = tr.Listener().Params().Clone()
	stats, err := tr.Iterate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Skipped {
		t.Error("expected skipped listener update at λ=1 without " +
			"synthetic examples")
	}
	if !tr.Listener().Params().Equal(listenerBefore) {
		t.Error("speaker update changed the listener")
	}
	if stats.SpeakerLoss <= 0 {
		t.Errorf("speaker loss %v", stats.SpeakerLoss)
	}
}

func TestMalformedItemsDropped(t *testing.T) {
	c := config(t)
	c.RealPerBatch = 3
	all := append(items(t), item(t, "bad", []int{4}, "A", "C"))
	tr := trainer(t, c, all)

	stats, err := tr.Iterate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Dropped != 1 || stats.Real != 2 {
		t.Errorf("want(1, 2) dropped and real examples have(%v, %v)",
			stats.Dropped, stats.Real)
	}
}

func TestInvariantViolation(t *testing.T) {
	tr := trainer(t, config(t), items(t))
	ex, err := tr.Real(items(t)[0])
	if err != nil {
		t.Fatal(err)
	}
	ex.Trajectory.Steps[0].Action = 99

	_, err = tr.Loss(&backtranslate.Batch{
		Examples: []backtranslate.Example{ex},
	}, 0)
	if !errors.Is(err, backtranslate.ErrInvariantViolation) {
		t.Errorf("expected invariant violation, have(%v)", err)
	}
}

func TestCheckpointResume(t *testing.T) {
	c := config(t)
	c.SyntheticPerBatch = 1
	c.SpeakerUpdatesPerIter = 1
	ctx := context.Background()

	original := trainer(t, c, items(t))
	if _, err := original.Iterate(ctx); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := original.Snapshot(&buf); err != nil {
		t.Fatal(err)
	}

	resumed := trainer(t, c, items(t))
	if err := resumed.Restore(&buf); err != nil {
		t.Fatal(err)
	}
	if resumed.Iteration() != 1 {
		t.Errorf("iteration: want(1) have(%v)", resumed.Iteration())
	}

	want, err := original.Iterate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	have, err := resumed.Iterate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want.LossStats != have.LossStats {
		t.Errorf("losses: want(%+v) have(%+v)", want.LossStats,
			have.LossStats)
	}
	if !original.Listener().Params().Equal(resumed.Listener().Params()) {
		t.Error("listeners diverged after resuming")
	}
	if !original.Critic().Params().Equal(resumed.Critic().Params()) {
		t.Error("critics diverged after resuming")
	}
	if !original.Speaker().Params().Equal(resumed.Speaker().Params()) {
		t.Error("speakers diverged after resuming")
	}
}

func TestRestoreConfigMismatch(t *testing.T) {
	c := config(t)
	original := trainer(t, c, items(t))
	var buf bytes.Buffer
	if err := original.Snapshot(&buf); err != nil {
		t.Fatal(err)
	}
	snap := buf.Bytes()

	listenerSteps := config(t)
	listenerSteps.Listener.MaxSteps++
	speakerLength := config(t)
	speakerLength.Speaker.MaxLength++
	speakerHidden := config(t)
	speakerHidden.Speaker.Hidden++

	for name, other := range map[string]backtranslate.Config{
		"listener max steps": listenerSteps,
		"speaker max length": speakerLength,
		"speaker hidden":     speakerHidden,
	} {
		tr := trainer(t, other, items(t))
		if err := tr.Restore(bytes.NewReader(snap)); err == nil {
			t.Errorf("%v: expected error restoring a mismatched snapshot",
				name)
		}
		if tr.Iteration() != 0 {
			t.Errorf("%v: failed restore changed the iteration", name)
		}
		if tr.Listener().Config().MaxSteps != other.Listener.MaxSteps {
			t.Errorf("%v: failed restore adopted the snapshot listener", name)
		}
	}

	same := trainer(t, c, items(t))
	if err := same.Restore(bytes.NewReader(snap)); err != nil {
		t.Error(err)
	}
}

func TestMixSchedule(t *testing.T) {
	m := backtranslate.MixSchedule{Start: 0.2, End: 0.6, Anneal: 4}
	for iter, want := range map[int]float64{0: 0.2, 2: 0.4, 4: 0.6, 10: 0.6} {
		if have := m.Lambda(iter); math.Abs(have-want) > 1e-12 {
			t.Errorf("iteration %v: want(%v) have(%v)", iter, want, have)
		}
	}
	if backtranslate.FixedMix(0.3).Lambda(100) != 0.3 {
		t.Error("fixed schedule changed")
	}
	if err := (backtranslate.MixSchedule{Start: 1.5}).Validate(); err == nil {
		t.Error("expected error for λ > 1")
	}
}

func TestConfigValidate(t *testing.T) {
	c := config(t)
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	bad := config(t)
	bad.Speaker.Vocab = vocab + 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for mismatched vocabularies")
	}

	bad = config(t)
	bad.RealPerBatch, bad.SyntheticPerBatch = 0, 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty batches")
	}

	bad = config(t)
	bad.EnvDrop = 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for drop probability 1")
	}
}
