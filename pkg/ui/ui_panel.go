package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	titleHeight   = 30.0
	sectionHeight = 25.0
	labelHeight   = 15.0
	scrollStep    = 20.0
)

// UIWidget is an interface for all UI widgets
type UIWidget interface {
	Update()
	Draw(screen *ebiten.Image)
	GetHeight() float64
	Contains(mx, my float64) bool
	place(x, y float64)
}

// SliderWrapper wraps Slider to implement UIWidget
type SliderWrapper struct {
	*Slider
}

func (s *SliderWrapper) GetHeight() float64 { return s.H + 25 }
func (s *SliderWrapper) place(x, y float64) { s.X, s.Y = x, y }

// CheckboxWrapper wraps Checkbox to implement UIWidget
type CheckboxWrapper struct {
	*Checkbox
}

func (c *CheckboxWrapper) GetHeight() float64 { return c.Size + 5 }

// the box sits right of its label, on the label line
func (c *CheckboxWrapper) place(x, y float64) { c.X, c.Y = x+200, y-labelHeight }

// ButtonWrapper wraps Button to implement UIWidget
type ButtonWrapper struct {
	*Button
}

func (b *ButtonWrapper) GetHeight() float64 { return b.Height + 8 - labelHeight }
func (b *ButtonWrapper) place(x, y float64) { b.X, b.Y = x, y-labelHeight }

// UIPanel stacks widgets under section headers in a scrollable column
type UIPanel struct {
	X, Y          float64
	Width, Height float64
	Title         string
	Widgets       []UIWidget
	Labels        []string
	ScrollOffset  float64

	BGColor     color.RGBA
	BorderColor color.RGBA

	sections []PanelSection
}

// PanelSection groups the widgets in [StartIndex, EndIndex) under a title
type PanelSection struct {
	Title      string
	StartIndex int
	EndIndex   int
}

// NewUIPanel creates a new UI panel
func NewUIPanel(x, y, width, height float64) *UIPanel {
	return &UIPanel{
		X:           x,
		Y:           y,
		Width:       width,
		Height:      height,
		Title:       "Controls",
		BGColor:     color.RGBA{R: 40, G: 40, B: 45, A: 230},
		BorderColor: color.RGBA{R: 100, G: 100, B: 110, A: 255},
	}
}

// AddSection starts a new section; it also closes the previous one
func (p *UIPanel) AddSection(title string) {
	p.EndSection()
	p.sections = append(p.sections, PanelSection{
		Title:      title,
		StartIndex: len(p.Widgets),
		EndIndex:   -1,
	})
}

// EndSection closes the current section
func (p *UIPanel) EndSection() {
	if n := len(p.sections); n > 0 && p.sections[n-1].EndIndex < 0 {
		p.sections[n-1].EndIndex = len(p.Widgets)
	}
}

// AddSlider adds a slider widget to the panel
func (p *UIPanel) AddSlider(label string, min, max, value float64) *Slider {
	s := NewSlider(p.X+10, 0, p.Width-20, label, min, max, value)
	p.add(&SliderWrapper{s}, label)
	return s
}

// AddCheckbox adds a checkbox widget to the panel
func (p *UIPanel) AddCheckbox(label string, value bool) *Checkbox {
	c := NewCheckbox(p.X+10, 0, label, value)
	p.add(&CheckboxWrapper{c}, label)
	return c
}

// AddButton adds a full width button; its label is drawn on the button itself
func (p *UIPanel) AddButton(label string, onClick func()) *Button {
	b := NewButton(p.X+10, 0, p.Width-20, 22, label, onClick)
	p.add(&ButtonWrapper{b}, "")
	return b
}

func (p *UIPanel) add(w UIWidget, label string) {
	p.Widgets = append(p.Widgets, w)
	p.Labels = append(p.Labels, label)
	p.layout()
}

// layout positions every widget for the current scroll offset and returns the
// label line of each one
func (p *UIPanel) layout() []float64 {
	lines := make([]float64, len(p.Widgets))
	y := p.Y + titleHeight - p.ScrollOffset
	next := 0
	place := func(end int) {
		for ; next < end && next < len(p.Widgets); next++ {
			lines[next] = y
			p.Widgets[next].place(p.X+10, y+labelHeight)
			y += labelHeight + p.Widgets[next].GetHeight()
		}
	}
	for _, s := range p.sections {
		place(s.StartIndex)
		y += sectionHeight
		end := s.EndIndex
		if end < 0 {
			end = len(p.Widgets)
		}
		place(end)
	}
	place(len(p.Widgets))
	return lines
}

// ContentHeight is the height of everything in the panel, scrolled or not
func (p *UIPanel) ContentHeight() float64 {
	h := titleHeight + float64(len(p.sections))*sectionHeight
	for _, w := range p.Widgets {
		h += labelHeight + w.GetHeight()
	}
	return h
}

// Contains reports whether the point is over the panel, so callers can ignore
// clicks the panel consumes
func (p *UIPanel) Contains(mx, my float64) bool {
	return mx >= p.X && mx <= p.X+p.Width && my >= p.Y && my <= p.Y+p.Height
}

// Scroll moves the content by dy wheel steps, clamped to the content height
func (p *UIPanel) Scroll(dy float64) {
	maxScroll := max(p.ContentHeight()-p.Height+10, 0)
	p.ScrollOffset = max(0, min(maxScroll, p.ScrollOffset-dy*scrollStep))
	p.layout()
}

// Update handles input for all widgets
func (p *UIPanel) Update() {
	mx, my := ebiten.CursorPosition()
	if _, dy := ebiten.Wheel(); dy != 0 && p.Contains(float64(mx), float64(my)) {
		p.Scroll(dy)
	}
	for _, w := range p.Widgets {
		w.Update()
	}
}

// Draw renders the panel and the widgets inside its bounds
func (p *UIPanel) Draw(screen *ebiten.Image) {
	vector.FillRect(screen,
		float32(p.X), float32(p.Y),
		float32(p.Width), float32(p.Height),
		p.BGColor, true)
	vector.StrokeRect(screen,
		float32(p.X), float32(p.Y),
		float32(p.Width), float32(p.Height),
		2, p.BorderColor, true)
	ebitenutil.DebugPrintAt(screen, p.Title, int(p.X+10), int(p.Y+5))

	lines := p.layout()
	visible := func(y float64) bool { return y >= p.Y+titleHeight-5 && y <= p.Y+p.Height-labelHeight }

	for _, s := range p.sections {
		y := p.Y + titleHeight - p.ScrollOffset
		if s.StartIndex < len(lines) {
			y = lines[s.StartIndex] - sectionHeight
		} else if len(lines) > 0 {
			last := len(lines) - 1
			y = lines[last] + labelHeight + p.Widgets[last].GetHeight()
		}
		if visible(y) {
			vector.FillRect(screen,
				float32(p.X+5), float32(y),
				float32(p.Width-10), 20,
				color.RGBA{R: 60, G: 60, B: 70, A: 255}, true)
			ebitenutil.DebugPrintAt(screen, s.Title, int(p.X+10), int(y+3))
		}
	}

	for i, w := range p.Widgets {
		if !visible(lines[i]) {
			continue
		}
		if p.Labels[i] != "" {
			ebitenutil.DebugPrintAt(screen, p.Labels[i], int(p.X+10), int(lines[i]))
		}
		w.Draw(screen)
	}
}
