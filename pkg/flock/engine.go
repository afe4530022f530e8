package flock

import (
	"math"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
)

// Jitter is a source of uniform values in [0, 1). *rand.Rand satisfies it.
type Jitter interface {
	Float64() float64
}

// Engine is the force-accumulating visitor. One Engine serves a whole pass: Start
// resets the accumulators, so it can be reused tick after tick.
//
// Only the producer passes a Jitter; a mirror is never simulated.
type Engine struct {
	params     Params
	jitter     Jitter
	randomness float64

	self          particle.Particle
	active        bool
	force         geometry.Vector2D
	cohesion      geometry.Vector2D
	cohesionCount int

	visited int
}

// NewEngine builds a flocking visitor. A nil jitter disables the random motion.
func NewEngine(params Params, jitter Jitter, randomness float64) *Engine {
	return &Engine{params: params, jitter: jitter, randomness: randomness}
}

// Params returns the engine's copy of the tuning constants.
func (e *Engine) Params() Params { return e.params }

// Visited returns how many candidate pairs were examined since the engine was built
// or since the last ResetVisited.
func (e *Engine) Visited() int { return e.visited }

// ResetVisited zeroes the candidate counter.
func (e *Engine) ResetVisited() { e.visited = 0 }

// Start begins accumulating for slot i.
func (e *Engine) Start(_ int, self particle.Particle) {
	e.self = self
	e.active = true
	e.force = geometry.Vector2D{}
	e.cohesion = geometry.Vector2D{}
	e.cohesionCount = 0
}

// Next folds one candidate into the accumulators. Candidates outside every radius
// contribute nothing, which is what makes bucket collisions harmless.
func (e *Engine) Next(_ int, other particle.Particle) {
	if !e.active {
		return
	}
	e.visited++
	p := &e.params

	d := e.self.Pos.Sub(other.Pos)
	dist2 := d.LenSqr()
	if dist2 == 0 {
		return
	}
	dist := math.Sqrt(dist2)

	predicted := other.Pos.Add(other.Velo.Mul(p.PredictionTime)).
		Sub(e.self.Pos).
		Sub(e.self.Velo.Mul(p.PredictionTime))
	predicted2 := predicted.LenSqr()
	if predicted2 < p.SeparationDist*p.SeparationDist && predicted2 > 0 {
		pd := math.Sqrt(predicted2)
		e.force = e.force.Add(d.Mul(p.SeparationGain / pd * (1 - pd/p.SeparationDist)))
	}

	if dist < p.AlignmentDist {
		e.force = e.force.Add(other.Velo.Sub(e.self.Velo).Mul(p.AlignmentGain))
	}

	if dist < p.CohesionDist {
		e.cohesion = e.cohesion.Add(d.Mul(p.CohesionGain / dist))
		e.cohesionCount++
	} else if dist < p.GroupSeparationDist {
		e.force = e.force.Add(d.Mul(p.GroupSeparationGain / dist * (1 - dist/p.GroupSeparationDist)))
	}
}

// End applies the accumulated force to self and integrates it one step.
func (e *Engine) End(_ int, self *particle.Particle) {
	if !e.active {
		return
	}
	e.active = false
	p := &e.params

	self.Velo = self.Velo.Add(e.force).Sub(self.Velo.Mul(p.Drag))
	if e.jitter != nil {
		self.Velo.X += (e.jitter.Float64() - 0.5) * e.randomness
		self.Velo.Y += (e.jitter.Float64() - 0.5) * e.randomness
	}
	if e.cohesionCount > 0 {
		self.Velo = self.Velo.Add(e.cohesion.Mul(1 / float64(e.cohesionCount)))
	}

	TimeStep(self, e.params)
}

// TimeStep applies wall containment and speed regulation to p, then advances its
// position by one DeltaTime, clamped into the simulation bounds.
func TimeStep(p *particle.Particle, params Params) {
	p.Velo.X += wallPush(p.Pos.X, params)
	p.Velo.Y += wallPush(p.Pos.Y, params)

	speed2 := p.Velo.LenSqr()
	switch {
	case speed2 > 0 && speed2 < params.MinSpeed*params.MinSpeed:
		p.Velo = p.Velo.Add(p.Velo.Mul(params.SpeedAdapt / math.Sqrt(speed2)))
	case speed2 > params.MaxSpeed*params.MaxSpeed:
		p.Velo = p.Velo.Sub(p.Velo.Mul(params.SpeedAdapt / math.Sqrt(speed2)))
	}

	p.Pos = p.Pos.Add(p.Velo.Mul(params.DeltaTime)).Clamp(0, params.SpaceWidth)
}

func wallPush(x float64, params Params) float64 {
	switch {
	case x < params.WallRepulsionDist:
		return params.WallRepulsion
	case params.SpaceWidth-params.WallRepulsionDist < x:
		return -params.WallRepulsion
	}
	return 0
}
