package dataset_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/instruction"
	"github.com/samuelfneumann/vlnav/utils/navtest"
)

const data = `[
	{"path_id": 1, "scan": "toy", "path": ["A", "B", "C"], "heading": 0,
	 "distance": 8, "instructions": ["Walk forward.", "Go to C"]},
	{"path_id": 2, "scan": "toy", "path": ["A", "C"], "heading": 0,
	 "distance": 8, "instructions": ["jump to c"]},
	{"path_id": 3, "scan": "toy", "path": ["E", "D"], "heading": 0,
	 "distance": 4, "instructions": ["   "]}
]`

func items(t *testing.T) []dataset.Item {
	entries, err := dataset.ReadJSON(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	vocab := instruction.BuildVocab(dataset.Sentences(entries), 1)
	items, errs := dataset.Items(entries, instruction.NewTokenizer(vocab, 10))
	if len(errs) != 1 {
		t.Errorf("want(1) tokenization error have(%v)", errs)
	}
	return items
}

func TestItems(t *testing.T) {
	got := items(t)
	if len(got) != 3 {
		t.Fatalf("want(3) items have(%v)", len(got))
	}
	if got[1].ID != "1_1" || got[1].Text != "Go to C" {
		t.Errorf("unexpected item %v", got[1])
	}
	spec := got[0].Spec()
	if spec.Start != "A" || spec.Goal != "C" || spec.Scan != "toy" {
		t.Errorf("unexpected spec %+v", spec)
	}
}

func TestDemonstration(t *testing.T) {
	env := navtest.Simulator(10).NewSession()
	all := items(t)

	traj, err := dataset.Demonstration(env, all[0])
	if err != nil {
		t.Fatal(err)
	}
	if p := strings.Join(traj.Path(), ""); p != "ABC" {
		t.Errorf("path: want(ABC) have(%v)", p)
	}
	if traj.Len() != 3 || !traj.Steps[2].Stopped() {
		t.Errorf("expected two moves and a stop, have %v steps", traj.Len())
	}

	// Moving towards the goal twice, then stopping on it
	if r := traj.Return(); r != 4 {
		t.Errorf("return: want(4) have(%v)", r)
	}

	if _, err := dataset.Demonstration(env, all[2]); !errors.Is(err,
		dataset.ErrMalformedPath) {
		t.Errorf("expected malformed path, have(%v)", err)
	}

	kept, errs := dataset.Filter(env, all)
	if len(kept) != 2 || len(errs) != 1 {
		t.Errorf("want(2, 1) kept and dropped have(%v, %v)", len(kept),
			len(errs))
	}
}

func TestDemonstrationBudget(t *testing.T) {
	env := navtest.Simulator(1).NewSession()
	if _, err := dataset.Demonstration(env, items(t)[0]); !errors.Is(err,
		dataset.ErrMalformedPath) {
		t.Errorf("expected malformed path, have(%v)", err)
	}
}

func TestShortest(t *testing.T) {
	spec := environment.EpisodeSpec{ID: "dc", Scan: navtest.Scan,
		Start: "D", Goal: "C"}

	traj, err := dataset.Shortest(navtest.Simulator(10).NewSession(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if p := strings.Join(traj.Path(), ""); p != "DABC" {
		t.Errorf("path: want(DABC) have(%v)", p)
	}
	if traj.BudgetExceeded || !traj.Steps[traj.Len()-1].Stopped() {
		t.Error("expected a stop at the goal")
	}

	traj, err = dataset.Shortest(navtest.Simulator(2).NewSession(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if !traj.BudgetExceeded || traj.Len() != 2 {
		t.Errorf("expected two steps cut by the budget, have(%v, %v)",
			traj.Len(), traj.BudgetExceeded)
	}
}

func TestShuffleResume(t *testing.T) {
	all := items(t)
	d, err := dataset.New(all, 5)
	if err != nil {
		t.Fatal(err)
	}
	d.Next(2)

	state, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := d.Next(7)

	resumed, err := dataset.New(all, 99)
	if err != nil {
		t.Fatal(err)
	}
	if err := resumed.UnmarshalBinary(state); err != nil {
		t.Fatal(err)
	}
	have := resumed.Next(7)
	for i := range want {
		if want[i].ID != have[i].ID {
			t.Errorf("item %v: want(%v) have(%v)", i, want[i].ID, have[i].ID)
		}
	}
	if d.Epoch() != 2 || resumed.Epoch() != 2 {
		t.Errorf("epochs: want(2) have(%v, %v)", d.Epoch(), resumed.Epoch())
	}
}

func TestEpochCoversAllItems(t *testing.T) {
	all := items(t)
	d, err := dataset.New(all, 1)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, item := range d.Next(len(all)) {
		seen[item.ID] = true
	}
	if len(seen) != len(all) {
		t.Errorf("epoch visited %v of %v items", len(seen), len(all))
	}
}
