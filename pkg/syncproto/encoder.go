package syncproto

import "github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"

// Encoder schedules the messages of each tick: one control message, then a burst of
// consecutive slots starting at a rotating cursor. A full refresh of N slots takes
// ceil(N/burst) ticks.
type Encoder struct {
	burst  int
	cursor int
}

// NewEncoder creates an encoder sending up to burst slots per tick (at least one).
func NewEncoder(burst int) *Encoder {
	return &Encoder{burst: max(burst, 1)}
}

// Burst returns the number of slots sent per tick.
func (e *Encoder) Burst() int { return e.burst }

// Cursor returns the first slot of the next burst.
func (e *Encoder) Cursor() int { return e.cursor }

// Encode returns the messages of one tick and advances the cursor.
// The cursor wraps to 0 once it reaches the table length; after a shrink that leaves
// it past the end, the tick sends the control message alone and wraps.
func (e *Encoder) Encode(table particle.Table) []Message {
	msgs := make([]Message, 0, 1+e.burst)
	msgs = append(msgs, NewControl(len(table)))
	for i := e.cursor; i < len(table) && i < e.cursor+e.burst; i++ {
		msgs = append(msgs, NewSlot(i, table[i]))
	}

	e.cursor += e.burst
	if len(table) <= e.cursor {
		e.cursor = 0
	}
	return msgs
}

// AppendDatagrams encodes one tick and appends one RecordSize buffer per message to dst.
func (e *Encoder) AppendDatagrams(dst [][]byte, table particle.Table) ([][]byte, error) {
	for _, m := range e.Encode(table) {
		b, err := m.MarshalBinary()
		if err != nil {
			return dst, err
		}
		dst = append(dst, b)
	}
	return dst, nil
}
