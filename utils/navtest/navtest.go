// Package navtest builds small deterministic navigation worlds for
// tests and examples.
//
// The toy scan is laid out as follows, with 4 meters between adjacent
// viewpoints:
//
//	        C
//	        |
//	        B
//	        |
//	E - D - A
package navtest

import (
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/feature"
)

// Scan is the scan id of the toy world
const Scan = "toy"

// Schema returns the small feature schema used by the toy world
func Schema() feature.Schema {
	return feature.Schema{Visual: 6, Angle: 4, Spatial: 2, Motion: 2,
		Landmark: 2}
}

// Graph returns the navigation graph of the toy world
func Graph() *environment.Graph {
	g := environment.NewGraph(Scan)
	g.AddViewpoint("A", 0, 0, 0)
	g.AddViewpoint("B", 0, 4, 0)
	g.AddViewpoint("C", 0, 8, 0)
	g.AddViewpoint("D", -4, 0, 0)
	g.AddViewpoint("E", -8, 0, 0)
	for _, e := range [][2]string{{"A", "B"}, {"B", "C"}, {"A", "D"},
		{"D", "E"}} {
		if err := g.Connect(e[0], e[1]); err != nil {
			panic(err)
		}
	}
	return g
}

// Records returns deterministic features for every view of every
// viewpoint of the toy world
func Records(seed uint64) []feature.Record {
	s := Schema()
	rng := rand.New(rand.NewSource(seed))
	var out []feature.Record
	for _, vp := range Graph().Viewpoints() {
		for v := 0; v < feature.Views; v++ {
			out = append(out, feature.Record{
				Viewpoint: vp,
				View:      v,
				Visual:    randVec(rng, s.Visual),
				Spatial:   randVec(rng, s.Spatial),
				Motion:    randVec(rng, s.Motion),
				Landmark:  randVec(rng, s.Landmark),
			})
		}
	}
	return out
}

func randVec(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}

// Store returns an in-memory feature store of the toy world
func Store(seed uint64) *feature.MemoryStore {
	store, err := feature.NewMemoryStore(Schema())
	if err != nil {
		panic(err)
	}
	for _, r := range Records(seed) {
		if err := store.Add(r); err != nil {
			panic(err)
		}
	}
	return store
}

// Simulator returns a Simulator of the toy world using the progress
// task and a budget of maxActions actions per episode
func Simulator(maxActions int) *environment.Simulator {
	sim, err := environment.NewSimulator(
		[]*environment.Graph{Graph()},
		Store(1),
		environment.NewProgress(),
		maxActions,
	)
	if err != nil {
		panic(err)
	}
	return sim
}
