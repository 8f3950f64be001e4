// Package progress normalizes raw byte counters into percentages and
// delivers them to caller callbacks without blocking the transfer loop.
package progress

import "sync"

// Func receives a completion percentage between 0 and 100.
type Func func(percentage float64)

// Percentage converts observed/expected bytes into 0..100.
// ok is false when expected is unknown (zero or negative).
func Percentage(observed, expected int64) (float64, bool) {
	if expected <= 0 {
		return 0, false
	}
	return float64(observed) / float64(expected) * 100, true
}

// Reporter forwards percentages to a Func on its own goroutine.
// Report never blocks on the callback and never drops a sample; Close
// delivers everything queued and guarantees no call happens afterwards.
// A Reporter built from a nil Func is a no-op.
type Reporter struct {
	fn Func

	mu      sync.Mutex
	pending []float64
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewReporter starts a reporter for fn
func NewReporter(fn Func) *Reporter {
	r := &Reporter{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if fn == nil {
		close(r.done)
		return r
	}
	go r.loop()
	return r
}

// Report queues a raw sample. Samples with unknown totals are ignored.
func (r *Reporter) Report(observed, expected int64) {
	if r.fn == nil {
		return
	}
	pct, ok := Percentage(observed, expected)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, pct)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close flushes queued samples and stops the delivery goroutine
func (r *Reporter) Close() {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}

func (r *Reporter) loop() {
	defer close(r.done)
	for range r.wake {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		closed := r.closed
		r.mu.Unlock()

		for _, pct := range batch {
			r.fn(pct)
		}
		if closed {
			// Samples queued after the swap above were rejected by Report
			return
		}
	}
}
