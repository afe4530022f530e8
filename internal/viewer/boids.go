package viewer

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
)

const (
	tipLength  = 6.0
	wingLength = 5.0
	wingAngle  = 2.5
	// DrawTriangles takes uint16 indices
	maxPerBatch = math.MaxUint16 / 3
)

type triangleBatch struct {
	vertices []ebiten.Vertex
	indices  []uint16
}

// boidBatches turns the table into velocity-oriented triangles tinted with each
// particle's colour, split so no batch overflows the index type.
func boidBatches(table particle.Table, toScreen func(geometry.Vector2D) (float32, float32)) []triangleBatch {
	var batches []triangleBatch
	for start := 0; start < len(table); start += maxPerBatch {
		end := min(start+maxPerBatch, len(table))
		b := triangleBatch{
			vertices: make([]ebiten.Vertex, 0, 3*(end-start)),
			indices:  make([]uint16, 0, 3*(end-start)),
		}
		for _, p := range table[start:end] {
			x, y := toScreen(p.Pos)
			angle := p.Velo.Angle()
			r := float32(p.Color[0]) / 255
			gr := float32(p.Color[1]) / 255
			bl := float32(p.Color[2]) / 255
			base := uint16(len(b.vertices))
			for _, pt := range [3]struct{ a, l float64 }{
				{angle, tipLength},
				{angle + wingAngle, wingLength},
				{angle - wingAngle, wingLength},
			} {
				b.vertices = append(b.vertices, ebiten.Vertex{
					DstX:   x + float32(math.Cos(pt.a)*pt.l),
					DstY:   y + float32(math.Sin(pt.a)*pt.l),
					SrcX:   1,
					SrcY:   1,
					ColorR: r,
					ColorG: gr,
					ColorB: bl,
					ColorA: 1,
				})
			}
			b.indices = append(b.indices, base, base+1, base+2)
		}
		batches = append(batches, b)
	}
	return batches
}
