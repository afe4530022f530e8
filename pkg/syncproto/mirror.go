package syncproto

import (
	"time"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
)

// MaxCount bounds the table length a control message may announce, so a corrupted
// datagram cannot trigger an arbitrarily large allocation.
const MaxCount = 1 << 20

// Stats counts what a Mirror did with the messages it was given.
type Stats struct {
	Controls uint64 `json:"controls"`
	Resizes  uint64 `json:"resizes"`
	Applied  uint64 `json:"applied"`
	Dropped  uint64 `json:"dropped"`
}

// Mirror is the consumer-side replica of a producer table. It is built only from
// received messages and is never simulated. A Mirror is not safe for concurrent use.
type Mirror struct {
	table   particle.Table
	updated []time.Time
	stats   Stats
	now     func() time.Time
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{now: time.Now}
}

// Apply folds one message into the mirror and reports whether it was accepted.
//
// A control message announcing the current length changes nothing. Any other length
// discards the contents and allocates that many zero particles. A slot message
// overwrites its slot whole when the slot exists and is dropped otherwise, which
// covers patches that overtake their resize or that arrive after a shrink.
func (m *Mirror) Apply(msg Message) bool {
	if msg.IsControl() {
		m.stats.Controls++
		if msg.Count > MaxCount {
			m.stats.Dropped++
			return false
		}
		n := int(msg.Count)
		if n != len(m.table) {
			m.table = make(particle.Table, n)
			m.updated = make([]time.Time, n)
			m.stats.Resizes++
		}
		return true
	}

	slot := msg.Slot()
	if slot >= uint64(len(m.table)) {
		m.stats.Dropped++
		return false
	}
	m.table[slot] = msg.Particle
	m.updated[slot] = m.now()
	m.stats.Applied++
	return true
}

// Len returns the current mirror length.
func (m *Mirror) Len() int { return len(m.table) }

// Table returns a copy of the mirrored particles.
func (m *Mirror) Table() particle.Table { return m.table.Clone() }

// Updated returns a copy of the last write time of every slot. Slots never
// patched since the last resize hold the zero time.
func (m *Mirror) Updated() []time.Time {
	out := make([]time.Time, len(m.updated))
	copy(out, m.updated)
	return out
}

// Age returns how long ago slot i was last patched. It reports false for slots out
// of range or not patched since the last resize.
func (m *Mirror) Age(i int) (time.Duration, bool) {
	if i < 0 || i >= len(m.updated) || m.updated[i].IsZero() {
		return 0, false
	}
	return m.now().Sub(m.updated[i]), true
}

// Stats returns the message counters.
func (m *Mirror) Stats() Stats { return m.stats }
