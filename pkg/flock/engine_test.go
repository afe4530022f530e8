package flock

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
)

type constJitter float64

func (c constJitter) Float64() float64 { return float64(c) }

func at(x, y float64) particle.Particle {
	return particle.Particle{Pos: geometry.Vector2D{X: x, Y: y}}
}

// pairForce returns the force slot "self" accumulates from a single neighbor.
func pairForce(e *Engine, self, other particle.Particle) geometry.Vector2D {
	e.Start(0, self)
	e.Next(1, other)
	f := e.force
	e.active = false
	return f
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"ZeroWidth", func(p *Params) { p.SpaceWidth = 0 }},
		{"NegativeDeltaTime", func(p *Params) { p.DeltaTime = -1 }},
		{"ZeroCell", func(p *Params) { p.CellSize = 0 }},
		{"ZeroSeparationDist", func(p *Params) { p.SeparationDist = 0 }},
		{"MinAboveMax", func(p *Params) { p.MinSpeed = 1; p.MaxSpeed = 0.5 }},
		{"NegativeRandomness", func(p *Params) { p.Randomness = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestParams_MaxRadius(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1.5, p.MaxRadius())
	assert.LessOrEqual(t, p.MaxRadius(), p.CellSize)
}

func TestEngine_TwoClusters(t *testing.T) {
	table := particle.Table{at(0, 0), at(0.1, 0), at(5, 5), at(5.1, 5)}
	e := NewEngine(DefaultParams(), nil, 0)

	f01 := pairForce(e, table[0], table[1])
	f10 := pairForce(e, table[1], table[0])
	assert.Less(t, f01.X, 0.0, "slot 0 is pushed away from slot 1")
	assert.Greater(t, f10.X, 0.0, "slot 1 is pushed away from slot 0")
	assert.InDelta(t, -f01.X, f10.X, 1e-15, "separation is mutual")

	f23 := pairForce(e, table[2], table[3])
	f32 := pairForce(e, table[3], table[2])
	assert.NotZero(t, f23.X)
	assert.NotZero(t, f32.X)

	for _, pair := range [][2]int{{0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 0}, {3, 1}} {
		e.Start(pair[0], table[pair[0]])
		e.Next(pair[1], table[pair[1]])
		assert.Zero(t, e.force, "pair %v", pair)
		assert.Zero(t, e.cohesion, "pair %v", pair)
		assert.Zero(t, e.cohesionCount, "pair %v", pair)
		e.active = false
	}
}

func TestEngine_CoincidentParticlesStayFinite(t *testing.T) {
	params := DefaultParams()
	params.PredictionTime = 0.5
	// slots 0 and 1 overlap; slot 2 sits exactly where slot 0 is predicted to be.
	table := particle.Table{at(4, 4), at(4, 4), at(4.1, 4)}
	table[0].Velo = geometry.Vector2D{X: 0.2}
	table[1].Velo = geometry.Vector2D{X: 0.2}

	e := NewEngine(params, nil, 0)
	for range 10 {
		spatial.BruteForce(table, e)
	}
	for i, p := range table {
		assert.True(t, p.Pos.IsFinite() && p.Velo.IsFinite(), "slot %d: %s", i, p)
	}
}

func TestEngine_Jitter(t *testing.T) {
	p := particle.Particle{Pos: geometry.Vector2D{X: 4, Y: 4}, Velo: geometry.Vector2D{X: 0.3}}
	e := NewEngine(DefaultParams(), constJitter(0.75), 0.04)

	e.Start(0, p)
	e.End(0, &p)

	assert.InDelta(t, 0.31, p.Velo.X, 1e-12)
	assert.InDelta(t, 0.01, p.Velo.Y, 1e-12)
	assert.InDelta(t, 4.0031, p.Pos.X, 1e-12)
	assert.InDelta(t, 4.0001, p.Pos.Y, 1e-12)
}

func TestEngine_EndWithoutStartIsNoop(t *testing.T) {
	p := at(4, 4)
	NewEngine(DefaultParams(), nil, 0).End(0, &p)
	assert.Equal(t, at(4, 4), p)
}

func TestTimeStep(t *testing.T) {
	params := DefaultParams()

	t.Run("ZeroVelocityIsIdempotent", func(t *testing.T) {
		p := at(4, 4)
		TimeStep(&p, params)
		TimeStep(&p, params)
		assert.Equal(t, at(4, 4), p)
	})

	t.Run("SlowSpeedsUp", func(t *testing.T) {
		p := at(4, 4)
		p.Velo = geometry.Vector2D{X: 0.1, Y: 0.05}
		before := p.Speed()
		TimeStep(&p, params)
		assert.Greater(t, p.Speed(), before)
	})

	t.Run("FastSlowsDown", func(t *testing.T) {
		p := at(4, 4)
		p.Velo = geometry.Vector2D{X: 0.6, Y: -0.2}
		before := p.Speed()
		TimeStep(&p, params)
		assert.Less(t, p.Speed(), before)
	})

	t.Run("WallPushesInward", func(t *testing.T) {
		p := at(0.1, 7.9)
		TimeStep(&p, params)
		assert.Greater(t, p.Velo.X, 0.0)
		assert.Less(t, p.Velo.Y, 0.0)
	})

	t.Run("PositionIsClamped", func(t *testing.T) {
		p := at(7.999, 0.001)
		p.Velo = geometry.Vector2D{X: 1, Y: -1}
		TimeStep(&p, params)
		assert.Equal(t, params.SpaceWidth, p.Pos.X)
		assert.Equal(t, 0.0, p.Pos.Y)
	})
}

// With N = 64 the hash is (gx + 57*gy) mod 64, which maps every cell of any 3x3
// block inside [0,6]^2 to a distinct bucket, so no real neighbor is visited twice.
// DeltaTime is zero so positions stay where Update bucketed them.
func TestEngine_IndexMatchesBruteForce(t *testing.T) {
	const n = 64
	params := DefaultParams()
	params.DeltaTime = 0

	rng := rand.New(rand.NewPCG(7, 11))
	source := particle.Random(rng, n, 6)
	for i := range source {
		source[i].Velo = geometry.Vector2D{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5}
	}

	brute := source.Clone()
	indexed := source.Clone()
	idx := spatial.NewIndex(n, params.CellSize)

	for tick := range 5 {
		spatial.Run(spatial.ModeBruteForce, idx, brute, NewEngine(params, nil, 0))
		spatial.Run(spatial.ModeIndex, idx, indexed, NewEngine(params, nil, 0))

		for i := range source {
			require.InDelta(t, brute[i].Velo.X, indexed[i].Velo.X, 1e-12, "tick %d slot %d", tick, i)
			require.InDelta(t, brute[i].Velo.Y, indexed[i].Velo.Y, 1e-12, "tick %d slot %d", tick, i)
			require.Equal(t, brute[i].Pos, indexed[i].Pos)
		}
	}
}

func TestEngine_IndexMatchesBruteForceWhileMoving(t *testing.T) {
	const n = 64
	params := DefaultParams()
	cell := params.CellSize

	// Keep every particle 0.05 inside its cell. Slots move far less than that in
	// one pass, so a neighbor that moves into range is still in the 3x3 block
	// computed from its old cell.
	rng := rand.New(rand.NewPCG(3, 5))
	source := make(particle.Table, n)
	for i := range source {
		source[i].Pos = geometry.Vector2D{
			X: float64(rng.IntN(4))*cell + 0.05 + rng.Float64()*(cell-0.1),
			Y: float64(rng.IntN(4))*cell + 0.05 + rng.Float64()*(cell-0.1),
		}
		source[i].Velo = geometry.Vector2D{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5}.Mul(0.6)
	}

	brute := source.Clone()
	indexed := source.Clone()
	spatial.Run(spatial.ModeBruteForce, nil, brute, NewEngine(params, nil, 0))
	spatial.Run(spatial.ModeIndex, spatial.NewIndex(n, cell), indexed, NewEngine(params, nil, 0))

	moved := 0
	for i := range source {
		assert.InDelta(t, brute[i].Velo.X, indexed[i].Velo.X, 1e-12, "slot %d", i)
		assert.InDelta(t, brute[i].Velo.Y, indexed[i].Velo.Y, 1e-12, "slot %d", i)
		step := brute[i].Pos.DistanceTo(source[i].Pos)
		require.Less(t, step, 0.05, "slot %d", i)
		if step > 0 {
			moved++
		}
	}
	assert.Greater(t, moved, n/2, "positions change during the pass")
}

func TestEngine_VisitedCountsCandidates(t *testing.T) {
	table := particle.Table{at(1, 1), at(2, 2), at(3, 3)}
	e := NewEngine(DefaultParams(), nil, 0)
	spatial.BruteForce(table, e)
	assert.Equal(t, 6, e.Visited())
	e.ResetVisited()
	assert.Zero(t, e.Visited())
}

func benchmarkPass(b *testing.B, mode spatial.Mode, n int) {
	params := DefaultParams()
	rng := rand.New(rand.NewPCG(1, 1))
	table := particle.Random(rng, n, params.SpaceWidth)
	idx := spatial.NewIndex(n, params.CellSize)
	e := NewEngine(params, rng, params.Randomness)

	b.ResetTimer()
	for range b.N {
		spatial.Run(mode, idx, table, e)
	}
}

func BenchmarkPass_Index1000(b *testing.B)      { benchmarkPass(b, spatial.ModeIndex, 1000) }
func BenchmarkPass_BruteForce1000(b *testing.B) { benchmarkPass(b, spatial.ModeBruteForce, 1000) }
