package particle

import (
	"math/rand/v2"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
)

// Table is the ordered entity array. The slot index is the identity of an agent:
// slots are never re-sorted or reused within a generation.
type Table []Particle

// Random fills a new table of n particles spread uniformly over [0, width)
// with random colors, at rest.
func Random(rng *rand.Rand, n int, width float64) Table {
	t := make(Table, n)
	for i := range t {
		t[i] = randomParticle(rng, width)
	}
	return t
}

func randomParticle(rng *rand.Rand, width float64) Particle {
	return New(
		geometry.Vector2D{X: rng.Float64() * width, Y: rng.Float64() * width},
		[3]uint8{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256))},
	)
}

// Len returns the number of slots.
func (t Table) Len() int { return len(t) }

// Clone returns an independent copy, used for read-only snapshots.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	c := make(Table, len(t))
	copy(c, t)
	return c
}

// Grow returns t resized to n slots. Existing slots keep their identity; new slots
// are drawn from rng inside [0, width). Shrinking truncates the highest slots.
func (t Table) Grow(rng *rand.Rand, n int, width float64) Table {
	if n <= len(t) {
		return t[:n:n]
	}
	grown := make(Table, n)
	copy(grown, t)
	for i := len(t); i < n; i++ {
		grown[i] = randomParticle(rng, width)
	}
	return grown
}

// Nearest returns the slot closest to pos among those strictly within radius.
func Nearest(t Table, pos geometry.Vector2D, radius float64) (int, bool) {
	best, bestDist := -1, radius
	for i, p := range t {
		d := p.Pos.DistanceTo(pos)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}
