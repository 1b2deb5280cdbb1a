// Package checkpointer implements Checkpointers, which periodically
// write the training state of an experiment to disk
package checkpointer

import (
	"io"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Snapshotter is an object whose state can be written to a stream and
// later restored from it
type Snapshotter interface {
	Snapshot(w io.Writer) error
}

// Checkpointer checkpoints/saves Snapshotters based on the number of
// completed training iterations
type Checkpointer interface {
	Checkpoint(iteration int) error
}

// Latest returns the lexically last file matching pattern, which is
// the most recent checkpoint for filenames produced by
// FilenameEnumerator or FilenameTimer
func Latest(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", errors.Wrap(err, "latest")
	}
	if len(matches) == 0 {
		return "", errors.Errorf("latest: no checkpoint matches %v", pattern)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
