// Package viewer draws producer or consumer snapshots in an ebiten window. It never
// touches a table directly: every frame starts from a Snapshot copy.
package viewer

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/simulation"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/spatial"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/ui"
)

const (
	// DefaultScale is how many pixels one world unit spans.
	DefaultScale = 100.0
	panelWidth   = 280.0
	margin       = 10.0
	freshFor     = time.Second
	resizeStep   = 100
)

// Source is what the viewer reads every frame. Both Producer and Consumer satisfy it.
type Source interface {
	Snapshot() simulation.Snapshot
	SelectNearest(pos geometry.Vector2D) int
	Stopped() bool
}

// ModeSetter switches neighbor search between the index and brute force. Both
// Producer and Consumer satisfy it.
type ModeSetter interface {
	SetMode(mode spatial.Mode)
}

// Controller is the producer-only side: runtime changes to the simulation.
type Controller interface {
	ModeSetter
	SetRandomness(r float64)
	Resize(n int) error
}

// Options configure a Game.
type Options struct {
	Title  string
	Scale  float64
	Params flock.Params
}

// Game implements ebiten.Game over a Source.
type Game struct {
	src    Source
	modes  ModeSetter
	ctrl   Controller
	params flock.Params
	title  string
	scale  float64
	logger log.Logger

	panel         *ui.UIPanel
	showGrid      *ui.Checkbox
	showNeighbors *ui.Checkbox
	showDistances *ui.Checkbox

	snap  simulation.Snapshot
	white *ebiten.Image

	// Timing instrumentation
	updateAvg float64
	drawAvg   float64
}

// New builds the viewer. A src implementing ModeSetter gets the index toggle, one
// implementing Controller also gets the simulation controls.
func New(src Source, opts Options, logger log.Logger) *Game {
	g := &Game{
		src:    src,
		params: opts.Params,
		title:  opts.Title,
		scale:  opts.Scale,
		logger: logger,
	}
	if g.scale <= 0 {
		g.scale = DefaultScale
	}
	if g.title == "" {
		g.title = "flock"
	}
	if modes, ok := src.(ModeSetter); ok {
		g.modes = modes
	}
	if ctrl, ok := src.(Controller); ok {
		g.ctrl = ctrl
	}
	g.snap = src.Snapshot()

	_, h := g.size()
	g.panel = ui.NewUIPanel(margin, margin, panelWidth, float64(h)-2*margin)
	if g.modes != nil {
		g.panel.AddSection("Neighbor search")
		useIndex := g.panel.AddCheckbox("Use spatial index", g.snap.Mode == spatial.ModeIndex)
		useIndex.OnToggle = func(on bool) {
			mode := spatial.ModeBruteForce
			if on {
				mode = spatial.ModeIndex
			}
			g.modes.SetMode(mode)
			g.logger.Infof("neighbor search switched to %s", mode)
		}
	}
	if g.ctrl != nil {
		g.panel.AddSection("Simulation")
		randomness := g.panel.AddSlider("Randomness", 0, 0.1, g.snap.Randomness)
		randomness.OnChange = g.ctrl.SetRandomness

		g.panel.AddSection("Population")
		g.panel.AddButton(fmt.Sprintf("+%d particles", resizeStep), func() { g.resize(resizeStep) })
		g.panel.AddButton(fmt.Sprintf("-%d particles", resizeStep), func() { g.resize(-resizeStep) })
	}
	g.panel.AddSection("Display")
	g.showGrid = g.panel.AddCheckbox("Show grid", false)
	g.showNeighbors = g.panel.AddCheckbox("Show neighbors", true)
	g.showDistances = g.panel.AddCheckbox("Show distances", false)
	g.panel.EndSection()
	return g
}

// Run opens the window and blocks until it is closed or the source stops.
func (g *Game) Run() error {
	w, h := g.size()
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle(g.title)
	err := ebiten.RunGame(g)
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

func (g *Game) resize(delta int) {
	n := max(len(g.snap.Table)+delta, 0)
	if err := g.ctrl.Resize(n); err != nil {
		g.logger.Warnf("resize to %d: %v", n, err)
	}
}

// Update reads input and takes the frame's snapshot.
func (g *Game) Update() error {
	start := time.Now()
	defer func() {
		g.updateAvg = g.updateAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	if g.src.Stopped() {
		return ebiten.Termination
	}
	g.panel.Update()
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		mx, my := ebiten.CursorPosition()
		g.click(float64(mx), float64(my))
	}
	g.snap = g.src.Snapshot()
	return nil
}

// click selects the particle under the cursor unless the panel owns the point.
func (g *Game) click(mx, my float64) int {
	if g.panel.Contains(mx, my) {
		return -1
	}
	return g.src.SelectNearest(g.toWorld(mx, my))
}

// Draw renders the last snapshot.
func (g *Game) Draw(screen *ebiten.Image) {
	start := time.Now()
	defer func() {
		g.drawAvg = g.drawAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	if g.white == nil {
		g.white = ebiten.NewImage(3, 3)
		g.white.Fill(color.White)
	}

	g.drawBounds(screen)
	if g.showGrid.Value {
		g.drawGrid(screen)
	}
	g.drawSelection(screen)
	g.drawFresh(screen)
	for _, batch := range boidBatches(g.snap.Table, g.toScreen) {
		screen.DrawTriangles(batch.vertices, batch.indices, g.white, &ebiten.DrawTrianglesOptions{})
	}

	g.panel.Draw(screen)
	g.drawStats(screen)
}

func (g *Game) drawBounds(screen *ebiten.Image) {
	x, y := g.toScreen(geometry.Vector2D{})
	side := float32(g.params.SpaceWidth * g.scale)
	vector.StrokeRect(screen, x, y, side, side, 1, color.RGBA{R: 90, G: 90, B: 100, A: 255}, true)
}

func (g *Game) drawGrid(screen *ebiten.Image) {
	cell := g.params.CellSize
	side := float32(cell * g.scale)
	clr := color.RGBA{R: 60, G: 80, B: 60, A: 255}
	for _, c := range spatial.Cells(g.snap.Table, cell) {
		x, y := g.toScreen(geometry.NewVector(float64(c.X)*cell, float64(c.Y)*cell))
		vector.StrokeRect(screen, x, y, side, side, 1, clr, true)
	}
}

func (g *Game) drawSelection(screen *ebiten.Image) {
	if !g.snap.HasSelection() {
		return
	}
	self := g.snap.Table[g.snap.Selected]
	sx, sy := g.toScreen(self.Pos)

	if g.showNeighbors.Value {
		clr := color.RGBA{R: 120, G: 120, B: 40, A: 255}
		for _, j := range g.snap.Neighbors {
			if j < 0 || j >= len(g.snap.Table) {
				continue
			}
			nx, ny := g.toScreen(g.snap.Table[j].Pos)
			vector.StrokeLine(screen, sx, sy, nx, ny, 1, clr, true)
		}
	}
	if g.showDistances.Value {
		for _, ring := range []struct {
			radius float64
			clr    color.RGBA
		}{
			{g.params.SeparationDist, color.RGBA{R: 255, G: 80, B: 80, A: 255}},
			{g.params.AlignmentDist, color.RGBA{R: 80, G: 200, B: 80, A: 255}},
			{g.params.GroupSeparationDist, color.RGBA{R: 80, G: 120, B: 255, A: 255}},
		} {
			vector.StrokeCircle(screen, sx, sy, float32(ring.radius*g.scale), 1, ring.clr, true)
		}
	}
	vector.StrokeCircle(screen, sx, sy, 8, 2, color.White, true)
}

func (g *Game) drawFresh(screen *ebiten.Image) {
	if g.snap.Updated == nil {
		return
	}
	now := time.Now()
	clr := color.RGBA{R: 255, G: 200, B: 0, A: 160}
	for i, p := range g.snap.Table {
		if g.snap.Fresh(i, now, freshFor) {
			x, y := g.toScreen(p.Pos)
			vector.StrokeCircle(screen, x, y, 6, 1, clr, true)
		}
	}
}

func (g *Game) drawStats(screen *ebiten.Image) {
	w, _ := g.size()
	msg := fmt.Sprintf("particles: %d\ntick:      %d\nmessages:  %d\nbytes:     %d\nmode:      %s\n\nFPS: %.2f\nUpdate: %.2fms\nDraw:   %.2fms",
		len(g.snap.Table), g.snap.Tick, g.snap.Messages, g.snap.Bytes, g.snap.Mode,
		ebiten.ActualFPS(), g.updateAvg, g.drawAvg)
	if g.snap.Malformed > 0 {
		msg += fmt.Sprintf("\nmalformed: %d", g.snap.Malformed)
	}
	ebitenutil.DebugPrintAt(screen, msg, w-170, int(margin))
}

// Layout keeps a fixed logical size so world coordinates map to stable pixels.
func (g *Game) Layout(int, int) (int, int) { return g.size() }

func (g *Game) size() (int, int) {
	side := g.params.SpaceWidth * g.scale
	return int(panelWidth + side + 3*margin + 170), int(side + 2*margin)
}

func (g *Game) origin() (float64, float64) { return panelWidth + 2*margin, margin }

func (g *Game) toScreen(v geometry.Vector2D) (float32, float32) {
	ox, oy := g.origin()
	return float32(ox + v.X*g.scale), float32(oy + v.Y*g.scale)
}

func (g *Game) toWorld(x, y float64) geometry.Vector2D {
	ox, oy := g.origin()
	return geometry.NewVector((x-ox)/g.scale, (y-oy)/g.scale)
}
