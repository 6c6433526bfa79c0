package session

import "sync/atomic"

// interest counts outstanding state observers. The polling loop only
// transmits while the count is positive, so an idle session stays silent on
// the radio.
type interest struct {
	n atomic.Int64
}

// acquire registers one observer and returns its release. Release is
// idempotent and must run on scope exit.
func (i *interest) acquire() (release func()) {
	i.n.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			i.n.Add(-1)
		}
	}
}

func (i *interest) count() int64 { return i.n.Load() }
