package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/simulation"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/ui"
)

type fakeSource struct {
	snap     simulation.Snapshot
	selected []geometry.Vector2D
}

func (f *fakeSource) Snapshot() simulation.Snapshot { return f.snap }
func (f *fakeSource) Stopped() bool                 { return false }
func (f *fakeSource) SelectNearest(pos geometry.Vector2D) int {
	f.selected = append(f.selected, pos)
	return 0
}

type fakeModeSource struct {
	fakeSource
	modes []spatial.Mode
}

func (f *fakeModeSource) SetMode(m spatial.Mode) { f.modes = append(f.modes, m) }

type fakeController struct {
	fakeSource
	modes   []spatial.Mode
	resizes []int
}

func (f *fakeController) SetMode(m spatial.Mode) { f.modes = append(f.modes, m) }
func (f *fakeController) SetRandomness(float64)  {}
func (f *fakeController) Resize(n int) error     { f.resizes = append(f.resizes, n); return nil }

func testOptions() Options {
	return Options{Params: flock.DefaultParams()}
}

func TestGame_CoordinateMapping(t *testing.T) {
	g := New(&fakeSource{}, testOptions(), log.DiscardLogger)

	x, y := g.toScreen(geometry.NewVector(0, 0))
	assert.Equal(t, float32(panelWidth+2*margin), x)
	assert.Equal(t, float32(margin), y)

	v := geometry.NewVector(3.25, 7.5)
	sx, sy := g.toScreen(v)
	back := g.toWorld(float64(sx), float64(sy))
	assert.InDelta(t, v.X, back.X, 1e-4)
	assert.InDelta(t, v.Y, back.Y, 1e-4)

	w, h := g.Layout(0, 0)
	assert.Equal(t, int(8*DefaultScale+2*margin), h)
	assert.Greater(t, w, int(panelWidth+8*DefaultScale))
}

func TestGame_ClickSelectsOutsidePanel(t *testing.T) {
	src := &fakeSource{}
	g := New(src, testOptions(), log.DiscardLogger)

	assert.Equal(t, -1, g.click(margin+5, margin+5))
	assert.Empty(t, src.selected)

	ox, oy := g.origin()
	assert.Equal(t, 0, g.click(ox+150, oy+250))
	require.Len(t, src.selected, 1)
	assert.InDelta(t, 1.5, src.selected[0].X, 1e-12)
	assert.InDelta(t, 2.5, src.selected[0].Y, 1e-12)
}

func TestGame_PanelDependsOnController(t *testing.T) {
	plain := New(&fakeSource{}, testOptions(), log.DiscardLogger)
	assert.Len(t, plain.panel.Widgets, 3, "display toggles only")

	src := &fakeModeSource{}
	consumer := New(src, testOptions(), log.DiscardLogger)
	require.Len(t, consumer.panel.Widgets, 4)
	assert.Equal(t, "Use spatial index", consumer.panel.Labels[0])
	useIndex, ok := consumer.panel.Widgets[0].(*ui.CheckboxWrapper)
	require.True(t, ok)
	assert.True(t, useIndex.Value)
	useIndex.OnToggle(false)
	useIndex.OnToggle(true)
	assert.Equal(t, []spatial.Mode{spatial.ModeBruteForce, spatial.ModeIndex}, src.modes)

	ctrl := &fakeController{}
	ctrl.snap.Table = make(particle.Table, 50)
	producer := New(ctrl, testOptions(), log.DiscardLogger)
	assert.Len(t, producer.panel.Widgets, 7)

	producer.resize(-resizeStep)
	producer.resize(resizeStep)
	assert.Equal(t, []int{0, 150}, ctrl.resizes)
}

func TestBoidBatches_OrientedByVelocity(t *testing.T) {
	p := particle.New(geometry.NewVector(1, 1), [3]uint8{255, 0, 51})
	p.Velo = geometry.NewVector(0, 0.3)
	identity := func(v geometry.Vector2D) (float32, float32) { return float32(v.X * 10), float32(v.Y * 10) }

	batches := boidBatches(particle.Table{p}, identity)
	require.Len(t, batches, 1)
	tri := batches[0]
	require.Len(t, tri.vertices, 3)
	assert.Equal(t, []uint16{0, 1, 2}, tri.indices)

	tip := tri.vertices[0]
	assert.InDelta(t, 10, tip.DstX, 1e-4)
	assert.InDelta(t, 10+tipLength, tip.DstY, 1e-4, "tip points along +Y velocity")
	assert.Equal(t, float32(1), tip.ColorR)
	assert.Equal(t, float32(0), tip.ColorG)
	assert.InDelta(t, 0.2, tip.ColorB, 1e-6)
}

func TestBoidBatches_SplitsLargeTables(t *testing.T) {
	table := make(particle.Table, maxPerBatch+10)
	batches := boidBatches(table, func(geometry.Vector2D) (float32, float32) { return 0, 0 })
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].vertices, 3*maxPerBatch)
	assert.Len(t, batches[1].indices, 30)
	assert.Equal(t, uint16(27), batches[1].indices[27], "indices restart per batch")
	assert.Empty(t, boidBatches(nil, nil))
}
