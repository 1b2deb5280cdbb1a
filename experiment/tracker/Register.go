package tracker

// everyTracker forwards every n-th Record to an embedded Tracker.
//
// The Save() method of everyTracker calls that of the embedded
// Tracker, whose Track() and Save() logic remains unmodified. This is
// useful for sub-sampling data of long training runs.
type everyTracker struct {
	Tracker
	n int
}

// Every returns a Tracker that forwards only Records whose Iteration is
// a multiple of n to t. If n < 2, t is returned unchanged.
func Every(t Tracker, n int) Tracker {
	if n < 2 {
		return t
	}
	return &everyTracker{t, n}
}

// Track forwards r to the embedded Tracker if its Iteration is a
// multiple of n
func (e *everyTracker) Track(r Record) {
	if r.Iteration%e.n == 0 {
		e.Tracker.Track(r)
	}
}
