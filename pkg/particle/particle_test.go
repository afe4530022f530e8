package particle

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
)

func TestParticle_BinaryLayout(t *testing.T) {
	p := Particle{
		Pos:   geometry.Vector2D{X: 1.5, Y: -2.25},
		Velo:  geometry.Vector2D{X: 0.125, Y: 3},
		Color: [3]uint8{10, 20, 30},
	}

	b, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, Size)

	// 1.5 == 0x3FF8000000000000, little-endian.
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xF8, 0x3F}, b[0:8])
	assert.Equal(t, []byte{10, 20, 30}, b[32:35])
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, b[35:40], "padding must be zero")

	var got Particle
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, p, got)
}

func TestParticle_AppendBinary(t *testing.T) {
	prefix := []byte{0xAA, 0xBB}
	b, err := Particle{Color: [3]uint8{1, 2, 3}}.AppendBinary(prefix)
	require.NoError(t, err)
	assert.Len(t, b, len(prefix)+Size)
	assert.Equal(t, prefix, b[:2])
}

func TestParticle_UnmarshalShortBuffer(t *testing.T) {
	var p Particle
	err := p.UnmarshalBinary(make([]byte, Size-1))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestParticle_Speed(t *testing.T) {
	p := Particle{Velo: geometry.Vector2D{X: 3, Y: 4}}
	assert.Equal(t, 5.0, p.Speed())
}

func TestTable_RandomAndClone(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	table := Random(rng, 50, 8)
	require.Equal(t, 50, table.Len())
	for i, p := range table {
		assert.True(t, p.Pos.X >= 0 && p.Pos.X < 8 && p.Pos.Y >= 0 && p.Pos.Y < 8, "slot %d out of bounds: %s", i, p)
		assert.Zero(t, p.Velo)
	}

	clone := table.Clone()
	clone[0].Pos.X = -42
	assert.NotEqual(t, clone[0], table[0], "clone must not alias the source")
	assert.Nil(t, Table(nil).Clone())
}

func TestTable_Grow(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	table := Random(rng, 5, 8)

	shrunk := table.Grow(rng, 3, 8)
	assert.Equal(t, table[:3], shrunk)

	grown := table.Grow(rng, 8, 8)
	require.Len(t, grown, 8)
	assert.Equal(t, table, grown[:5], "existing slots keep their identity")
}

func TestNearest(t *testing.T) {
	table := Table{
		{Pos: geometry.Vector2D{X: 1, Y: 1}},
		{Pos: geometry.Vector2D{X: 2, Y: 2}},
		{Pos: geometry.Vector2D{X: 2.2, Y: 2}},
	}

	tests := []struct {
		name   string
		pos    geometry.Vector2D
		want   int
		wantOK bool
	}{
		{"ExactHit", geometry.Vector2D{X: 1, Y: 1}, 0, true},
		{"ClosestOfTwo", geometry.Vector2D{X: 2.15, Y: 2}, 2, true},
		{"OutOfRadius", geometry.Vector2D{X: 5, Y: 5}, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Nearest(table, tt.pos, 0.5)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
