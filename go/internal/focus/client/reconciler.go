package client

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickInterval is the reconciler cadence
const TickInterval = time.Second

// Reconciler turns an authoritative absolute deadline into a local countdown.
// Remaining time is always recomputed from the deadline, never decremented, so
// every participant converges on the same wall-clock end regardless of when
// they joined. It is owned by the room loop and is not safe for concurrent use.
type Reconciler struct {
	clock    clockwork.Clock
	deadline time.Time
	armed    bool
	ticker   clockwork.Ticker
	last     int
	done     bool
}

// NewReconciler creates a stopped reconciler
func NewReconciler(clock clockwork.Clock) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{clock: clock}
}

// Arm sets (or replaces) the deadline and starts ticking. The returned value is
// the freshly computed remaining time; nothing from a previous arm carries over.
func (r *Reconciler) Arm(deadline time.Time) int {
	r.deadline = deadline
	r.armed = true
	r.done = false
	r.last = r.compute()

	if r.last == 0 {
		r.stopTicker()
		return 0
	}
	if r.ticker == nil {
		r.ticker = r.clock.NewTicker(TickInterval)
	} else {
		r.ticker.Reset(TickInterval)
	}
	return r.last
}

// Tick recomputes the remaining time. completed is true exactly once per arm,
// on the tick that first observes zero; the ticker is stopped at that point.
func (r *Reconciler) Tick() (remaining int, completed bool) {
	if !r.armed || r.done {
		return r.Remaining(), false
	}

	// a backwards step of the local clock must not make the countdown climb
	if now := r.compute(); now < r.last {
		r.last = now
	}

	if r.last == 0 {
		r.done = true
		r.stopTicker()
		return 0, true
	}
	return r.last, false
}

// Remaining is the last derived countdown value, or 0 when unarmed
func (r *Reconciler) Remaining() int {
	if !r.armed {
		return 0
	}
	return r.last
}

// Deadline returns the armed deadline
func (r *Reconciler) Deadline() (time.Time, bool) {
	return r.deadline, r.armed
}

// C delivers ticks while the reconciler is running. It returns nil when stopped,
// which blocks forever inside a select.
func (r *Reconciler) C() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.Chan()
}

// Running reports whether the 1 Hz tick source is active
func (r *Reconciler) Running() bool {
	return r.ticker != nil
}

// Stop cancels ticking but keeps the deadline, so Remaining stays meaningful
func (r *Reconciler) Stop() {
	r.stopTicker()
}

// Reset stops ticking and forgets the deadline
func (r *Reconciler) Reset() {
	r.stopTicker()
	r.deadline = time.Time{}
	r.armed = false
	r.done = false
	r.last = 0
}

func (r *Reconciler) stopTicker() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	// drain a tick that may already be buffered
	select {
	case <-r.ticker.Chan():
	default:
	}
	r.ticker = nil
}

// compute returns max(0, ceil(deadline - now)) in whole seconds. The
// difference is rounded to the millisecond first so that wire-format noise in
// the deadline never adds a whole second.
func (r *Reconciler) compute() int {
	left := r.deadline.Sub(r.clock.Now()).Round(time.Millisecond)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
