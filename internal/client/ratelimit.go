package client

import (
	"sync"
	"time"
)

// rateWindow is a fixed counting window: at most limit calls within
// each window. It fails fast; callers get the remaining wait time and
// decide for themselves whether to retry.
type rateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	count  int
	start  time.Time
}

func newRateWindow(limit int, window time.Duration) *rateWindow {
	return &rateWindow{limit: limit, window: window}
}

// allow consumes one slot if the budget permits. When the budget is
// exhausted it reports false and how long until the window resets.
func (r *rateWindow) allow(now time.Time) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.start.IsZero() || now.Sub(r.start) >= r.window {
		r.start = now
		r.count = 0
	}
	if r.count >= r.limit {
		return r.window - now.Sub(r.start), false
	}
	r.count++
	return 0, true
}
