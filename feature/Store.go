package feature

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Views is the number of discretized view directions around a
// viewpoint: 12 headings at each of 3 elevations.
const Views = 36

// ErrNotFound is returned when a Store has no features for a viewpoint.
var ErrNotFound = errors.New("features not found")

// Store is a read-only lookup of precomputed features, keyed by
// viewpoint and view index. The angle encoding of returned Bundles is
// relative to the absolute view direction and is usually recomputed
// by the caller relative to the agent's heading.
type Store interface {
	Schema() Schema
	Lookup(viewpoint string, view int) (Bundle, error)
	Panorama(viewpoint string) ([]Bundle, error)
}

// ViewHeading returns the absolute heading of view index ix.
func ViewHeading(ix int) float64 {
	return float64(ix%12) * (30 * degree)
}

// ViewElevation returns the absolute elevation of view index ix.
func ViewElevation(ix int) float64 {
	return float64(ix/12-1) * (30 * degree)
}

const degree = math.Pi / 180

// Record is the serialized form of the features of one view, used for
// importing features into a Store.
type Record struct {
	Viewpoint string    `json:"viewpoint"`
	View      int       `json:"view"`
	Visual    []float64 `json:"visual"`
	Spatial   []float64 `json:"spatial,omitempty"`
	Motion    []float64 `json:"motion,omitempty"`
	Landmark  []float64 `json:"landmark,omitempty"`
}

// Bundle converts the Record into a validated Bundle.
func (r Record) Bundle(s Schema) (Bundle, error) {
	if r.View < 0 || r.View >= Views {
		return Bundle{}, fmt.Errorf("bundle: view index out of range "+
			"[0, %v): %v", Views, r.View)
	}
	return NewBundle(s, r.Visual, fill(r.Spatial, s.Spatial),
		fill(r.Motion, s.Motion), fill(r.Landmark, s.Landmark),
		ViewHeading(r.View), ViewElevation(r.View))
}

// fill zero-fills missing optional features.
func fill(v []float64, dim int) []float64 {
	if len(v) == 0 && dim > 0 {
		return make([]float64, dim)
	}
	return v
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	schema Schema
	mu     sync.RWMutex
	views  map[string][]Bundle
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore(s Schema) (*MemoryStore, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{schema: s, views: make(map[string][]Bundle)}, nil
}

// Schema implements the Store interface.
func (m *MemoryStore) Schema() Schema {
	return m.schema
}

// Add adds the features of a single view.
func (m *MemoryStore) Add(r Record) error {
	b, err := r.Bundle(m.schema)
	if err != nil {
		return errors.Wrapf(err, "add %v/%v", r.Viewpoint, r.View)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	views, ok := m.views[r.Viewpoint]
	if !ok {
		views = make([]Bundle, Views)
		for i := range views {
			views[i] = Zero(m.schema).WithAngle(ViewHeading(i),
				ViewElevation(i))
		}
		m.views[r.Viewpoint] = views
	}
	views[r.View] = b
	return nil
}

// Lookup implements the Store interface.
func (m *MemoryStore) Lookup(viewpoint string, view int) (Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views, ok := m.views[viewpoint]
	if !ok || view < 0 || view >= len(views) {
		return Bundle{}, errors.Wrapf(ErrNotFound, "%v/%v", viewpoint, view)
	}
	return views[view], nil
}

// Panorama implements the Store interface.
func (m *MemoryStore) Panorama(viewpoint string) ([]Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views, ok := m.views[viewpoint]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, viewpoint)
	}
	out := make([]Bundle, len(views))
	copy(out, views)
	return out, nil
}

// Viewpoints returns the sorted ids of all viewpoints in the store.
func (m *MemoryStore) Viewpoints() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.views))
	for id := range m.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns every stored view as a Record, ordered by viewpoint
// and view index.
func (m *MemoryStore) Records() []Record {
	var out []Record
	for _, id := range m.Viewpoints() {
		views, _ := m.Panorama(id)
		for i, b := range views {
			out = append(out, Record{
				Viewpoint: id,
				View:      i,
				Visual:    b.Visual,
				Spatial:   b.Spatial,
				Motion:    b.Motion,
				Landmark:  b.Landmark,
			})
		}
	}
	return out
}

// LoadJSON reads a JSON array of Records into a new MemoryStore.
func LoadJSON(r io.Reader, s Schema) (*MemoryStore, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "loadJSON: could not decode features")
	}

	store, err := NewMemoryStore(s)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := store.Add(rec); err != nil {
			return nil, errors.Wrap(err, "loadJSON")
		}
	}
	return store, nil
}
