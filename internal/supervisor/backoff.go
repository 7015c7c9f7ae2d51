package supervisor

import "time"

// Restart limits. An action that crashes MaxCrashes times within CrashWindow
// of its first crash is disabled.
const (
	MaxCrashes  = 3
	CrashWindow = 10 * time.Second
)

// Decision is the backoff verdict for one crash.
type Decision int

const (
	// Restart means the action should be relaunched.
	Restart Decision = iota
	// Disable means the action must never be launched again.
	Disable
)

func (d Decision) String() string {
	if d == Disable {
		return "disable"
	}
	return "restart"
}

// crashWindow is the open crash window of one action. It opens on the first
// crash and is never extended by later crashes.
type crashWindow struct {
	count  int
	opened time.Time
	timer  Timer
}

// Backoff decides restart versus disable from crash frequency.
// It is not safe for concurrent use; the supervisor goroutine owns it.
type Backoff struct {
	clock      Clock
	maxCrashes int
	window     time.Duration
}

// NewBackoff returns a controller with the MaxCrashes and CrashWindow limits.
// Window expiry callbacks are scheduled on clock.
func NewBackoff(clock Clock) *Backoff {
	return &Backoff{
		clock:      clock,
		maxCrashes: MaxCrashes,
		window:     CrashWindow,
	}
}

// ReportCrash records a crash of a and returns what to do about it.
func (b *Backoff) ReportCrash(a *Action) Decision {
	w := a.window
	if w == nil {
		w = &crashWindow{opened: b.clock.Now()}
		a.window = w
		w.timer = b.clock.AfterFunc(b.window, func() {
			b.expire(a, w)
		})
	}
	w.count++

	if w.count >= b.maxCrashes {
		return Disable
	}
	return Restart
}

// Crashes returns the crash count of the open window of a, or 0.
func (b *Backoff) Crashes(a *Action) int {
	if a.window == nil {
		return 0
	}
	return a.window.count
}

// Release cancels the pending expiry of a and forgets its window.
func (b *Backoff) Release(a *Action) {
	if a.window == nil {
		return
	}
	if a.window.timer != nil {
		a.window.timer.Stop()
	}
	a.window = nil
}

// expire closes w unless a newer window replaced it. A disabled action's
// window is closed too; that never re-enables it.
func (b *Backoff) expire(a *Action, w *crashWindow) {
	if a.window == w {
		a.window = nil
	}
}
