// Package particle defines the fixed-layout agent record shared by the simulation,
// the spatial index and the wire protocol.
package particle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
)

// Size is the number of bytes of a Particle on the wire:
// pos (2 x f64), velo (2 x f64), color (3 x u8) and 5 bytes of zero padding.
const Size = 40

const colorOffset = 32

// ErrShortBuffer is returned when decoding from fewer than Size bytes.
var ErrShortBuffer = errors.New("particle: buffer shorter than record size")

// Particle is one boid. It is both the simulation unit and the wire payload,
// so it never carries variable-length fields.
type Particle struct {
	Pos   geometry.Vector2D `json:"pos"`
	Velo  geometry.Vector2D `json:"velo"`
	Color [3]uint8          `json:"color"`
}

// New creates a particle at rest.
func New(pos geometry.Vector2D, color [3]uint8) Particle {
	return Particle{Pos: pos, Color: color}
}

// Speed returns the velocity magnitude.
func (p Particle) Speed() float64 {
	return p.Velo.Len()
}

// String implements fmt.Stringer.
func (p Particle) String() string {
	return fmt.Sprintf("pos=%s velo=%s rgb=%v", p.Pos, p.Velo, p.Color)
}

// AppendBinary appends the 40-byte little-endian encoding of p to b.
func (p Particle) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Pos.X))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Pos.Y))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Velo.X))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Velo.Y))
	b = append(b, p.Color[0], p.Color[1], p.Color[2], 0, 0, 0, 0, 0)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p Particle) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, Size))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Only the first Size bytes
// are read; padding is ignored.
func (p *Particle) UnmarshalBinary(b []byte) error {
	if len(b) < Size {
		return fmt.Errorf("%w: got %d bytes", ErrShortBuffer, len(b))
	}
	p.Pos.X = math.Float64frombits(binary.LittleEndian.Uint64(b[0:8]))
	p.Pos.Y = math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
	p.Velo.X = math.Float64frombits(binary.LittleEndian.Uint64(b[16:24]))
	p.Velo.Y = math.Float64frombits(binary.LittleEndian.Uint64(b[24:32]))
	copy(p.Color[:], b[colorOffset:colorOffset+3])
	return nil
}
