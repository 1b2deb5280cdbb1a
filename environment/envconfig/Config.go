// Package envconfig provides configuration structs for configuring
// navigation simulators: the scans to load, the feature store to read
// from, the navigation task and the step budget. Simulator
// configurations in this package are JSON serializable.
package envconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	env "github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/feature"
)

// TaskName stores the tasks that can be configured with this package.
//
//	Task		Reward
//	Progress	+/-1 for moving closer to/away from the goal, +/-
//			SuccessReward for stopping within/outside SuccessRadius
//	Sparse		+/- SuccessReward on stopping only
type TaskName string

// Tasks available for configuration
const (
	Progress TaskName = "Progress"
	Sparse   TaskName = "Sparse"
)

// connectivitySuffix is the suffix of Matterport3D connectivity files,
// whose remaining base name is the scan id
const connectivitySuffix = "_connectivity.json"

// Config implements a specific configuration of a navigation
// simulator
type Config struct {
	// Connectivity holds the paths of the connectivity files of every
	// scan, named <scan>_connectivity.json
	Connectivity []string

	// Features is the path of the feature store. Files ending in .json
	// are loaded into memory, anything else is opened as a SQLite
	// database.
	Features string
	Schema   feature.Schema

	Task          TaskName
	SuccessRadius float64
	SuccessReward float64

	// MaxActions is the number of actions allowed per episode,
	// including the final stop
	MaxActions int
}

// NewConfig returns a new simulator Config of the Progress task with
// its standard success radius and reward
func NewConfig(connectivity []string, features string, s feature.Schema,
	maxActions int) Config {
	p := env.NewProgress()
	return Config{
		Connectivity:  connectivity,
		Features:      features,
		Schema:        s,
		Task:          Progress,
		SuccessRadius: p.SuccessRadius,
		SuccessReward: p.SuccessReward,
		MaxActions:    maxActions,
	}
}

// Validate returns an error if the Config cannot create a simulator
func (c Config) Validate() error {
	if len(c.Connectivity) == 0 {
		return fmt.Errorf("validate: no connectivity files")
	}
	for _, path := range c.Connectivity {
		if !strings.HasSuffix(path, connectivitySuffix) {
			return fmt.Errorf("validate: connectivity file %v must end "+
				"in %v", path, connectivitySuffix)
		}
	}
	if c.Features == "" {
		return fmt.Errorf("validate: no feature store")
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Task != Progress && c.Task != Sparse {
		return fmt.Errorf("validate: no such task %v", c.Task)
	}
	if c.SuccessRadius <= 0 {
		return fmt.Errorf("validate: success radius must be positive")
	}
	if c.MaxActions < 1 {
		return fmt.Errorf("validate: at least one action is needed to stop")
	}
	return nil
}

// NavTask returns the navigation task described by the Config
func (c Config) NavTask() env.Task {
	p := env.Progress{
		SuccessRadius: c.SuccessRadius,
		SuccessReward: c.SuccessReward,
	}
	if c.Task == Sparse {
		return env.Sparse{Progress: p}
	}
	return p
}

// Scan returns the scan id of a connectivity file path
func Scan(path string) string {
	return strings.TrimSuffix(filepath.Base(path), connectivitySuffix)
}

// LoadGraphs loads the navigation graphs of all connectivity files
func LoadGraphs(paths []string) ([]*env.Graph, error) {
	graphs := make([]*env.Graph, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "loadGraphs")
		}
		g, err := env.LoadConnectivity(Scan(path), f)
		f.Close()
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// OpenStore opens the feature store at path. The returned Closer
// releases the store and must be called once the store is no longer
// needed.
func OpenStore(path string, s feature.Schema) (feature.Store, io.Closer,
	error) {
	if strings.HasSuffix(path, ".json") {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "openStore")
		}
		defer f.Close()
		store, err := feature.LoadJSON(f, s)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	}

	store, err := feature.OpenSQLite(path, s)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Create returns the simulator described by the Config together with
// a Closer that releases its feature store
func (c Config) Create() (*env.Simulator, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("create: %v", err)
	}

	graphs, err := LoadGraphs(c.Connectivity)
	if err != nil {
		return nil, nil, fmt.Errorf("create: %v", err)
	}
	store, closer, err := OpenStore(c.Features, c.Schema)
	if err != nil {
		return nil, nil, fmt.Errorf("create: %v", err)
	}

	sim, err := env.NewSimulator(graphs, store, c.NavTask(), c.MaxActions)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("create: %v", err)
	}
	return sim, closer, nil
}
