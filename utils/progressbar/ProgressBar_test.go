package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, 10, 4)

	for i := 0; i < 6; i++ {
		p.Increment()
	}
	if p.currentProgress != 4 {
		t.Errorf("progress past maximum: %v", p.currentProgress)
	}

	p.SetStatus("loss=%.1f", 0.5)
	s := p.String()
	if !strings.Contains(s, "100.00%") {
		t.Errorf("expected full progress: %q", s)
	}
	if !strings.HasSuffix(s, "loss=0.5") {
		t.Errorf("expected status suffix: %q", s)
	}
	if n := strings.Count(s, "█"); n != 10 {
		t.Errorf("want(10) filled cells have(%v)", n)
	}

	p.Display()
	p.Close()
	written := buf.Len()
	p.Display()
	if buf.Len() != written {
		t.Error("closed progress bar was displayed")
	}
}
