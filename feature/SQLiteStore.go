package feature

import (
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a SQLite database of precomputed
// features. Panoramas are cached in memory after their first lookup.
type SQLiteStore struct {
	schema Schema
	db     *sql.DB

	mu    sync.RWMutex
	cache map[string][]Bundle
}

// OpenSQLite opens (creating if needed) a feature database at path.
func OpenSQLite(path string, s Schema) (*SQLiteStore, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "openSQLite: could not create "+
				"directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "openSQLite: could not open database")
	}
	// A single connection keeps in-memory databases alive and shared
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		schema: s,
		db:     db,
		cache:  make(map[string][]Bundle),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS features (
			viewpoint TEXT NOT NULL,
			view INTEGER NOT NULL,
			visual BLOB NOT NULL,
			spatial BLOB,
			motion BLOB,
			landmark BLOB,
			PRIMARY KEY (viewpoint, view)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "initSchema: could not create schema")
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Schema implements the Store interface.
func (s *SQLiteStore) Schema() Schema {
	return s.schema
}

// Import writes records into the database in a single transaction,
// replacing existing views.
func (s *SQLiteStore) Import(records []Record) error {
	for _, r := range records {
		if _, err := r.Bundle(s.schema); err != nil {
			return errors.Wrapf(err, "import %v/%v", r.Viewpoint, r.View)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "import: could not begin transaction")
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO features
		(viewpoint, view, visual, spatial, motion, landmark)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "import: could not prepare statement")
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.Exec(r.Viewpoint, r.View, encodeFloats(r.Visual),
			encodeFloats(r.Spatial), encodeFloats(r.Motion),
			encodeFloats(r.Landmark))
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "import %v/%v", r.Viewpoint, r.View)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "import: could not commit")
	}

	s.mu.Lock()
	s.cache = make(map[string][]Bundle)
	s.mu.Unlock()
	return nil
}

// Lookup implements the Store interface.
func (s *SQLiteStore) Lookup(viewpoint string, view int) (Bundle, error) {
	views, err := s.Panorama(viewpoint)
	if err != nil {
		return Bundle{}, err
	}
	if view < 0 || view >= len(views) {
		return Bundle{}, errors.Wrapf(ErrNotFound, "%v/%v", viewpoint, view)
	}
	return views[view], nil
}

// Panorama implements the Store interface.
func (s *SQLiteStore) Panorama(viewpoint string) ([]Bundle, error) {
	s.mu.RLock()
	views, ok := s.cache[viewpoint]
	s.mu.RUnlock()
	if ok {
		return append([]Bundle(nil), views...), nil
	}

	rows, err := s.db.Query(`
		SELECT view, visual, spatial, motion, landmark
		FROM features WHERE viewpoint = ? ORDER BY view
	`, viewpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "panorama %v", viewpoint)
	}
	defer rows.Close()

	views = make([]Bundle, Views)
	for i := range views {
		views[i] = Zero(s.schema).WithAngle(ViewHeading(i), ViewElevation(i))
	}
	found := false
	for rows.Next() {
		var r Record
		var visual, spatial, motion, landmark []byte
		if err := rows.Scan(&r.View, &visual, &spatial, &motion,
			&landmark); err != nil {
			return nil, errors.Wrapf(err, "panorama %v", viewpoint)
		}
		r.Viewpoint = viewpoint
		r.Visual = decodeFloats(visual)
		r.Spatial = decodeFloats(spatial)
		r.Motion = decodeFloats(motion)
		r.Landmark = decodeFloats(landmark)

		b, err := r.Bundle(s.schema)
		if err != nil {
			return nil, errors.Wrapf(err, "panorama %v", viewpoint)
		}
		views[r.View] = b
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "panorama %v", viewpoint)
	}
	if !found {
		return nil, errors.Wrap(ErrNotFound, viewpoint)
	}

	s.mu.Lock()
	s.cache[viewpoint] = views
	s.mu.Unlock()
	return append([]Bundle(nil), views...), nil
}

func encodeFloats(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(data []byte) []float64 {
	if len(data) == 0 {
		return nil
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}
