// Package flock implements the boids rules as a spatial.Visitor: forces are
// accumulated over the candidate neighbors of a slot, then applied and integrated
// when the slot's scan ends.
package flock

import (
	"errors"
	"fmt"
)

// Params holds every tunable constant of the simulation. It is a plain value:
// an Engine copies it at construction and never sees later changes.
type Params struct {
	SpaceWidth float64 // bounds are [0, SpaceWidth] on both axes
	DeltaTime  float64
	CellSize   float64 // spatial index grid size, at least the largest radius below

	SeparationGain float64
	SeparationDist float64
	PredictionTime float64 // separation look-ahead, 0 uses the current displacement

	AlignmentGain float64
	AlignmentDist float64

	CohesionGain float64
	CohesionDist float64

	GroupSeparationGain float64
	GroupSeparationDist float64

	Drag float64

	WallRepulsion     float64
	WallRepulsionDist float64

	MinSpeed   float64
	MaxSpeed   float64
	SpeedAdapt float64

	Randomness float64 // jitter gain used when the producer does not override it
}

// DefaultParams returns the reference tuning of the simulation.
func DefaultParams() Params {
	return Params{
		SpaceWidth: 8,
		DeltaTime:  0.01,
		CellSize:   1.5,

		SeparationGain: 5e-3,
		SeparationDist: 0.2,
		PredictionTime: 0,

		AlignmentGain: 1e-2,
		AlignmentDist: 0.7,

		CohesionGain: 1e-4,
		CohesionDist: 0.7,

		GroupSeparationGain: 2e-3,
		GroupSeparationDist: 1.5,

		Drag: 0,

		WallRepulsion:     5e-2,
		WallRepulsionDist: 0.5,

		MinSpeed:   0.25,
		MaxSpeed:   0.5,
		SpeedAdapt: 1e-2,

		Randomness: 5e-3,
	}
}

// ErrInvalidParams is wrapped by every error returned from Params.Validate.
var ErrInvalidParams = errors.New("invalid flock params")

// Validate reports the first inconsistent value.
func (p Params) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"SpaceWidth", p.SpaceWidth},
		{"DeltaTime", p.DeltaTime},
		{"CellSize", p.CellSize},
		{"SeparationDist", p.SeparationDist},
		{"AlignmentDist", p.AlignmentDist},
		{"CohesionDist", p.CohesionDist},
		{"GroupSeparationDist", p.GroupSeparationDist},
	}
	for _, f := range positive {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %g", ErrInvalidParams, f.name, f.v)
		}
	}
	if p.MinSpeed < 0 || p.MaxSpeed < 0 {
		return fmt.Errorf("%w: speeds must be >= 0", ErrInvalidParams)
	}
	if p.MinSpeed > p.MaxSpeed {
		return fmt.Errorf("%w: MinSpeed %g > MaxSpeed %g", ErrInvalidParams, p.MinSpeed, p.MaxSpeed)
	}
	if p.Randomness < 0 {
		return fmt.Errorf("%w: Randomness must be >= 0, got %g", ErrInvalidParams, p.Randomness)
	}
	return nil
}

// MaxRadius returns the largest interaction radius, the minimum sensible CellSize.
func (p Params) MaxRadius() float64 {
	return max(p.SeparationDist, p.AlignmentDist, p.CohesionDist, p.GroupSeparationDist)
}
