package checkpointer

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type counter struct {
	snapshots int
}

func (c *counter) Snapshot(w io.Writer) error {
	c.snapshots++
	_, err := w.Write([]byte{byte(c.snapshots)})
	return err
}

func TestNStep(t *testing.T) {
	dir := t.TempDir()
	obj := &counter{}
	c, err := NewNStep(3, obj, FilenameEnumerator(0,
		filepath.Join(dir, "ckpt"), ".bin"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i <= 10; i++ {
		if err := c.Checkpoint(i); err != nil {
			t.Fatal(err)
		}
	}
	if obj.snapshots != 3 {
		t.Errorf("want(3) snapshots have(%v)", obj.snapshots)
	}

	latest, err := Latest(filepath.Join(dir, "ckpt*.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "ckpt000003.bin"); latest != want {
		t.Errorf("latest: want(%v) have(%v)", want, latest)
	}
	data, err := os.ReadFile(latest)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 || data[0] != 3 {
		t.Errorf("latest checkpoint holds %v", data)
	}

	// No temporary files are left behind
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Errorf("want(3) files have(%v)", len(files))
	}
}

func TestNStepInterval(t *testing.T) {
	if _, err := NewNStep(0, &counter{}, FilenameTimer("x", ".bin", nil)); err == nil {
		t.Error("expected error for interval 0")
	}
}

func TestLatestMissing(t *testing.T) {
	if _, err := Latest(filepath.Join(t.TempDir(), "*.bin")); err == nil {
		t.Error("expected error without checkpoints")
	}
}

func TestFilenameEnumerator(t *testing.T) {
	next := FilenameEnumerator(9, "run/ckpt", ".bin")
	for _, want := range []string{"run/ckpt000010.bin", "run/ckpt000011.bin"} {
		if have := next(); have != want {
			t.Errorf("want(%v) have(%v)", want, have)
		}
	}
}

func TestFilenameTimer(t *testing.T) {
	clock := time.Date(2024, 3, 9, 17, 4, 5, 120, time.FixedZone("x", 3600))
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	next := FilenameTimer("run/ckpt", ".bin", now)

	first, second := next(), next()
	if want := "run/ckpt-20240309T160406.000000120.bin"; first != want {
		t.Errorf("want(%v) have(%v)", want, first)
	}
	if second <= first {
		t.Errorf("names do not sort chronologically: %v, %v", first, second)
	}
}

func TestNaming(t *testing.T) {
	dir := t.TempDir()
	for _, scheme := range []string{Enumerate, Timestamp} {
		name, err := Naming(scheme, filepath.Join(dir, scheme), ".bin")
		if err != nil {
			t.Fatal(err)
		}
		n, err := NewNStep(1, &counter{}, name)
		if err != nil {
			t.Fatal(err)
		}
		for i := 1; i <= 3; i++ {
			if err := n.Checkpoint(i); err != nil {
				t.Fatal(err)
			}
		}

		matches, err := filepath.Glob(filepath.Join(dir, scheme+"*.bin"))
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 3 {
			t.Errorf("%v: want(3) checkpoints have(%v)", scheme, matches)
		}
	}

	if _, err := Naming("random", "x", ".bin"); err == nil {
		t.Error("expected error for unknown naming scheme")
	}
}
