package tracker_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/vlnav/backtranslate"
	"github.com/samuelfneumann/vlnav/dataset"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/experiment/tracker"
	"github.com/samuelfneumann/vlnav/timestep"
	"github.com/samuelfneumann/vlnav/utils/navtest"
)

func demonstration(t *testing.T, path ...string) *timestep.Trajectory {
	sim := navtest.Simulator(10)
	traj, err := dataset.Demonstration(sim.NewSession(), dataset.Item{
		ID:   "demo",
		Scan: navtest.Scan,
		Path: path,
	})
	if err != nil {
		t.Fatal(err)
	}
	return traj
}

func TestOutcome(t *testing.T) {
	g := navtest.Graph()
	task := environment.NewProgress()

	tests := []struct {
		name    string
		path    []string
		goal    string
		ne, oe  float64
		success bool
		oracle  bool
		spl     float64
	}{
		{"shortest", []string{"A", "B", "C"}, "C", 0, 0, true, true, 1},
		{"wrong branch", []string{"A", "D"}, "C", 12, 8, false, false, 0},
		{"overshoot", []string{"A", "B", "C"}, "B", 4, 0, false, true, 0},
		{"detour", []string{"A", "D", "A", "B"}, "B", 0, 0, true, true,
			4.0 / 12.0},
	}
	for _, test := range tests {
		o, err := tracker.NewOutcome(g, task, demonstration(t, test.path...),
			test.goal)
		if err != nil {
			t.Fatalf("%v: %v", test.name, err)
		}
		if o.NavigationError != test.ne || o.OracleError != test.oe {
			t.Errorf("%v: errors want(%v, %v) have(%v, %v)", test.name,
				test.ne, test.oe, o.NavigationError, o.OracleError)
		}
		if o.Success != test.success || o.OracleSuccess != test.oracle {
			t.Errorf("%v: success want(%v, %v) have(%v, %v)", test.name,
				test.success, test.oracle, o.Success, o.OracleSuccess)
		}
		if math.Abs(o.SPL-test.spl) > 1e-12 {
			t.Errorf("%v: SPL want(%v) have(%v)", test.name, test.spl, o.SPL)
		}
		if o.Steps != len(test.path) {
			t.Errorf("%v: steps want(%v) have(%v)", test.name,
				len(test.path), o.Steps)
		}
	}

	if _, err := tracker.NewOutcome(g, task, &timestep.Trajectory{},
		"C"); err == nil {
		t.Error("expected error for empty trajectory")
	}
}

func TestSummarize(t *testing.T) {
	s := tracker.Summarize([]tracker.Outcome{
		{NavigationError: 0, Success: true, OracleSuccess: true, SPL: 1,
			Length: 8, Steps: 3},
		{NavigationError: 12, OracleError: 8, OracleSuccess: true,
			Length: 4, Steps: 2},
	})
	want := tracker.Summary{
		Episodes:          2,
		NavigationError:   6,
		OracleError:       4,
		SuccessRate:       0.5,
		OracleSuccessRate: 1,
		SPL:               0.5,
		Length:            6,
		Steps:             2.5,
	}
	if s != want {
		t.Errorf("want(%+v) have(%+v)", want, s)
	}
	if (tracker.Summarize(nil) != tracker.Summary{}) {
		t.Error("expected zero summary without outcomes")
	}
}

type recorder struct {
	iterations []int
}

func (r *recorder) Track(rec tracker.Record) {
	r.iterations = append(r.iterations, rec.Iteration)
}

func (r *recorder) Save() error { return nil }

func TestEvery(t *testing.T) {
	r := &recorder{}
	every := tracker.Every(r, 3)
	for i := 0; i < 10; i++ {
		every.Track(tracker.Record{Iteration: i,
			Stats: &backtranslate.IterationStats{Iteration: i}})
	}
	want := []int{0, 3, 6, 9}
	if len(r.iterations) != len(want) {
		t.Fatalf("want(%v) have(%v)", want, r.iterations)
	}
	for i := range want {
		if r.iterations[i] != want[i] {
			t.Errorf("want(%v) have(%v)", want, r.iterations)
		}
	}

	if tracker.Every(r, 1) != tracker.Tracker(r) {
		t.Error("expected unwrapped tracker for n=1")
	}
}

func TestSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "data.bin")
	data := []float64{1, 0.5, math.Inf(1)}
	if err := tracker.SaveData(filename, data); err != nil {
		t.Fatal(err)
	}
	loaded, err := tracker.LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(data) {
		t.Fatalf("want(%v) have(%v)", data, loaded)
	}
	for i := range data {
		if loaded[i] != data[i] {
			t.Errorf("want(%v) have(%v)", data, loaded)
		}
	}

	if _, err := tracker.LoadData(filename + ".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}
