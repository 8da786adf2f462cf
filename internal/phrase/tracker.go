package phrase

import "sync/atomic"

// Tracker hands out serial numbers and owns the expired-serial watermark.
// One tracker is shared by every phrase list that can supersede another.
type Tracker struct {
	next    atomic.Int64
	expired atomic.Int64
}

// NewTracker creates a tracker. The first serial handed out is 1.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Next returns a new serial number.
func (t *Tracker) Next() int64 {
	return t.next.Add(1)
}

// Last returns the most recently issued serial number.
func (t *Tracker) Last() int64 {
	return t.next.Load()
}

// Watermark returns the current expired-serial watermark. Serials strictly
// below it are expired.
func (t *Tracker) Watermark() int64 {
	return t.expired.Load()
}

// ExpireBefore advances the watermark to serial. The watermark never moves
// backward; a lower value is ignored.
func (t *Tracker) ExpireBefore(serial int64) {
	for {
		cur := t.expired.Load()
		if serial <= cur {
			return
		}
		if t.expired.CompareAndSwap(cur, serial) {
			return
		}
	}
}

// ExpireAll expires every serial issued so far.
func (t *Tracker) ExpireAll() {
	t.ExpireBefore(t.Last() + 1)
}

// IsExpired reports whether serial is below the watermark.
func (t *Tracker) IsExpired(serial int64) bool {
	return serial < t.expired.Load()
}
