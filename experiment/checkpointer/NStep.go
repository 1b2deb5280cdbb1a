package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// nStep implements checkpointing every N iterations
type nStep struct {
	interval int
	object   Snapshotter // Object to save

	// filename returns the string filename of the file to save the object
	// in.
	//
	// If each snapshot should be saved in a separate file with each
	// file having an incremented number as a suffix (e.g.
	// file000001.bin, file000002.bin, ...), then simply use the
	// static function FilenameEnumerator, which will return a function
	// that will enumerate filenames.
	//
	// Otherwise, if each snapshot should be saved in a separate file,
	// but the filename does not matter, use the static function
	// FilenameTimer to generate the required naming function. For
	// example:
	//
	// n := NewNStep(10, trainer, FilenameTimer("dir/trainer", ".bin", nil))
	filename func() string
}

// NewNStep returns a checkpointer that checkpoints every n completed
// iterations.
func NewNStep(n int, object Snapshotter,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNStep: interval must be positive, "+
			"have(%v)", n)
	}
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint writes a snapshot of the tracked object if iteration is a
// positive multiple of the interval. The snapshot is written to a
// temporary file first, so that an interrupted write never leaves a
// truncated checkpoint behind.
func (n *nStep) Checkpoint(iteration int) error {
	if iteration <= 0 || iteration%n.interval != 0 {
		return nil
	}

	name := n.filename()
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".checkpoint-*")
	if err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	defer os.Remove(tmp.Name())

	if err := n.object.Snapshot(tmp); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "checkpoint %v", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "checkpoint %v", name)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), name), "checkpoint %v", name)
}
