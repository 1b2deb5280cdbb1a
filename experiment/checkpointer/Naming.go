package checkpointer

import (
	"fmt"
	"time"
)

// Naming schemes of checkpoint files
const (
	Enumerate = "enumerate"
	Timestamp = "time"
)

// FilenameTimer returns a function which will append to a filename the
// UTC time given by now, formatted so that names sort chronologically.
// If now is nil, the wall clock is used.
func FilenameTimer(filename, extension string,
	now func() time.Time) func() string {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename,
			now().UTC().Format("20060102T150405.000000000"), extension)
	}
}

// Naming returns the filename function of a naming scheme
func Naming(scheme, filename, extension string) (func() string, error) {
	switch scheme {
	case Enumerate:
		return FilenameEnumerator(0, filename, extension), nil
	case Timestamp:
		return FilenameTimer(filename, extension, nil), nil
	default:
		return nil, fmt.Errorf("naming: unknown scheme %q, want %q or %q",
			scheme, Enumerate, Timestamp)
	}
}
