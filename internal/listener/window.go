package listener

// Range is an inclusive chain-position range to query.
type Range struct {
	From uint64
	To   uint64
}

// WindowTracker holds the last fully-processed chain position and computes
// the next query range. Each range re-scans a small lookback of recent
// positions to tolerate shallow reorganizations; the resulting duplicate
// events are filtered by the DedupeCache, not by window accounting.
//
// Not safe for concurrent use; the listener's poll loop is the only writer.
type WindowTracker struct {
	lastProcessed uint64
	lookback      uint64
}

// NewWindowTracker creates a tracker with the given lookback.
func NewWindowTracker(lookback uint64) *WindowTracker {
	return &WindowTracker{lookback: lookback}
}

// Init baselines the tracker at head-1 so the first poll scans from at least
// the current head.
func (w *WindowTracker) Init(head uint64) {
	if head > 0 {
		w.lastProcessed = head - 1
	} else {
		w.lastProcessed = 0
	}
}

// Reset sets the last processed position directly.
func (w *WindowTracker) Reset(lastProcessed uint64) {
	w.lastProcessed = lastProcessed
}

// LastProcessed returns the highest fully-scanned chain position.
func (w *WindowTracker) LastProcessed() uint64 {
	return w.lastProcessed
}

// NextRange computes the next query range for the given head. Reports false
// when there is nothing new to scan.
func (w *WindowTracker) NextRange(head uint64) (Range, bool) {
	if head <= w.lastProcessed {
		return Range{}, false
	}

	next := w.lastProcessed + 1
	var from uint64
	if next > w.lookback {
		from = next - w.lookback
	}
	return Range{From: from, To: head}, true
}

// Commit records head as fully processed. Called only after a scan of the
// range returned by NextRange completed without error, which keeps
// lastProcessed monotonically non-decreasing.
func (w *WindowTracker) Commit(head uint64) {
	w.lastProcessed = head
}
