// Package telemetry measures the flock and the replication traffic, aggregates the
// measurements in a monitor actor and writes them out as CSV windows.
package telemetry

import (
	"gonum.org/v1/gonum/stat"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
)

// FlockStats summarises the motion of a table.
type FlockStats struct {
	Count        int
	MeanSpeed    float64
	SpeedStdDev  float64
	Polarization float64 // norm of the mean heading: 1 when all boids fly the same way
}

// Measure computes FlockStats over table. Particles at rest count toward the speeds
// but have no heading.
func Measure(table particle.Table) FlockStats {
	n := len(table)
	if n == 0 {
		return FlockStats{}
	}

	speeds := make([]float64, n)
	var heading geometry.Vector2D
	for i, p := range table {
		s := p.Speed()
		speeds[i] = s
		if s > 0 {
			heading = heading.Add(p.Velo.Mul(1 / s))
		}
	}

	fs := FlockStats{
		Count:        n,
		Polarization: heading.Len() / float64(n),
	}
	if n == 1 {
		fs.MeanSpeed = speeds[0]
		return fs
	}
	fs.MeanSpeed, fs.SpeedStdDev = stat.MeanStdDev(speeds, nil)
	return fs
}
