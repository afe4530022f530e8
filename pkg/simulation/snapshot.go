package simulation

import (
	"time"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
)

// Snapshot is the read-only view handed to a renderer once per frame. It is copied
// under the owner's lock, so it reflects a table either fully before or fully after
// a tick, never in between.
type Snapshot struct {
	Table      particle.Table
	Updated    []time.Time // last patch time per slot, consumer only
	Neighbors  []int       // candidates visited for Selected during the last scan
	Selected   int         // -1 when nothing is selected
	Mode       spatial.Mode
	Randomness float64
	Tick       uint64
	Bytes      uint64 // total bytes sent or received
	Messages   uint64
	Malformed  uint64 // consumer only
}

// Fresh reports whether slot i was patched within d of now. Producer snapshots carry
// no patch times and are never fresh.
func (s Snapshot) Fresh(i int, now time.Time, d time.Duration) bool {
	if i < 0 || i >= len(s.Updated) || s.Updated[i].IsZero() {
		return false
	}
	return now.Sub(s.Updated[i]) < d
}

// HasSelection reports whether Selected names an existing slot.
func (s Snapshot) HasSelection() bool {
	return s.Selected >= 0 && s.Selected < len(s.Table)
}
