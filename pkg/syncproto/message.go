// Package syncproto replicates a particle table over an unreliable datagram transport.
//
// Every datagram is one fixed-width record: an 8-byte little-endian index followed by
// a 40-byte particle payload. Index 0 is the control message and carries the table
// length in the first 8 payload bytes; any other index i patches slot i-1.
package syncproto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
)

const (
	// IndexSize is the width of the index field.
	IndexSize = 8
	// RecordSize is the exact length of every datagram.
	RecordSize = IndexSize + particle.Size
	// ControlIndex is the reserved index of control messages.
	ControlIndex = 0
)

// ErrMessageSize is returned by Decode when a datagram is not exactly RecordSize bytes.
var ErrMessageSize = errors.New("syncproto: unexpected message size")

// Message is one decoded datagram.
type Message struct {
	Index    uint64            // 0 for control, slot+1 otherwise
	Count    uint64            // table length, control messages only
	Particle particle.Particle // slot messages only
}

// NewControl announces a table of count slots.
func NewControl(count int) Message {
	return Message{Index: ControlIndex, Count: uint64(count)}
}

// NewSlot carries the full record of one slot.
func NewSlot(slot int, p particle.Particle) Message {
	return Message{Index: uint64(slot) + 1, Particle: p}
}

// IsControl reports whether m is a control message.
func (m Message) IsControl() bool { return m.Index == ControlIndex }

// Slot returns the table slot a slot message patches.
func (m Message) Slot() uint64 { return m.Index - 1 }

func (m Message) String() string {
	if m.IsControl() {
		return fmt.Sprintf("control(count=%d)", m.Count)
	}
	return fmt.Sprintf("slot(%d %s)", m.Slot(), m.Particle)
}

// AppendBinary appends the RecordSize bytes of m to b.
func (m Message) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, m.Index)
	if m.IsControl() {
		b = binary.LittleEndian.AppendUint64(b, m.Count)
		return append(b, make([]byte, particle.Size-8)...), nil
	}
	return m.Particle.AppendBinary(b)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Message) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(make([]byte, 0, RecordSize))
}

// Decode parses one datagram. Its length must be exactly RecordSize.
func Decode(b []byte) (Message, error) {
	if len(b) != RecordSize {
		return Message{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMessageSize, len(b), RecordSize)
	}
	m := Message{Index: binary.LittleEndian.Uint64(b[:IndexSize])}
	payload := b[IndexSize:]
	if m.IsControl() {
		m.Count = binary.LittleEndian.Uint64(payload[:8])
		return m, nil
	}
	if err := m.Particle.UnmarshalBinary(payload); err != nil {
		return Message{}, err
	}
	return m, nil
}
