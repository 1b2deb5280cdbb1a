package envconfig_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/environment/envconfig"
	"github.com/samuelfneumann/vlnav/utils/navtest"
)

type connectivity struct {
	ImageID      string    `json:"image_id"`
	Pose         []float64 `json:"pose"`
	Included     bool      `json:"included"`
	Unobstructed []bool    `json:"unobstructed"`
	Height       float64   `json:"height"`
}

// writeToyWorld writes the connectivity and features of the toy world
// to dir and returns their paths
func writeToyWorld(t *testing.T, dir string) (string, string) {
	g := navtest.Graph()
	ids := g.Viewpoints()
	entries := make([]connectivity, len(ids))
	for i, id := range ids {
		pos, _ := g.Position(id)
		pose := make([]float64, 16)
		pose[3], pose[7], pose[11] = pos[0], pos[1], pos[2]

		open := make([]bool, len(ids))
		for j, other := range ids {
			open[j] = g.Adjacent(id, other)
		}
		entries[i] = connectivity{
			ImageID:      id,
			Pose:         pose,
			Included:     true,
			Unobstructed: open,
		}
	}

	graphPath := filepath.Join(dir, navtest.Scan+"_connectivity.json")
	featurePath := filepath.Join(dir, "features.json")
	for path, v := range map[string]interface{}{
		graphPath:   entries,
		featurePath: navtest.Records(1),
	} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return graphPath, featurePath
}

func TestCreate(t *testing.T) {
	graphPath, featurePath := writeToyWorld(t, t.TempDir())

	c := envconfig.NewConfig([]string{graphPath}, featurePath,
		navtest.Schema(), 5)
	sim, closer, err := c.Create()
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	if scans := sim.Scans(); len(scans) != 1 || scans[0] != navtest.Scan {
		t.Errorf("scans: want([%v]) have(%v)", navtest.Scan, scans)
	}
	if sim.MaxActions() != 5 {
		t.Errorf("max actions: want(5) have(%v)", sim.MaxActions())
	}

	ts, err := sim.NewSession().Reset(environment.EpisodeSpec{
		ID:    "test",
		Scan:  navtest.Scan,
		Start: "A",
		Goal:  "C",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ts.Distance != 8 {
		t.Errorf("distance: want(8) have(%v)", ts.Distance)
	}
	if n := len(ts.Observation.Candidates); n != 2 {
		t.Errorf("candidates of A: want(2) have(%v)", n)
	}
}

func TestValidate(t *testing.T) {
	base := envconfig.NewConfig([]string{"x/toy_connectivity.json"},
		"features.db", navtest.Schema(), 5)
	if err := base.Validate(); err != nil {
		t.Fatal(err)
	}

	tests := map[string]func(c *envconfig.Config){
		"no graphs":      func(c *envconfig.Config) { c.Connectivity = nil },
		"bad graph name": func(c *envconfig.Config) { c.Connectivity = []string{"toy.json"} },
		"no features":    func(c *envconfig.Config) { c.Features = "" },
		"unknown task":   func(c *envconfig.Config) { c.Task = "Teleport" },
		"no radius":      func(c *envconfig.Config) { c.SuccessRadius = 0 },
		"no actions":     func(c *envconfig.Config) { c.MaxActions = 0 },
	}
	for name, modify := range tests {
		c := base
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%v: expected error", name)
		}
	}
}

func TestNavTask(t *testing.T) {
	c := envconfig.NewConfig(nil, "", navtest.Schema(), 5)
	if r := c.NavTask().GetReward(4, 0, false); r != 1 {
		t.Errorf("progress reward: want(1) have(%v)", r)
	}
	c.Task = envconfig.Sparse
	if r := c.NavTask().GetReward(4, 0, false); r != 0 {
		t.Errorf("sparse reward: want(0) have(%v)", r)
	}
	if r := c.NavTask().GetReward(0, 0, true); r != c.SuccessReward {
		t.Errorf("sparse success: want(%v) have(%v)", c.SuccessReward, r)
	}
}

func TestScan(t *testing.T) {
	if s := envconfig.Scan("/data/17DRP5sb8fy_connectivity.json"); s != "17DRP5sb8fy" {
		t.Errorf("scan: want(17DRP5sb8fy) have(%v)", s)
	}
}
