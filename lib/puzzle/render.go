package puzzle

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const (
	Width  = 200
	Height = 70

	NoiseLines = 6
	NoiseDots  = 30

	// MaxRotation is in degrees, applied in both directions.
	MaxRotation = 8.0
)

const baseline = 44

var (
	backgrounds = []string{"#f4f1ea", "#eef3f8", "#f3eef6", "#edf5ee", "#fbf3e4", "#f0f0f0"}
	accents     = []string{"#c0392b", "#2c6fbb", "#1e8449", "#8e44ad", "#d35400", "#17202a"}
)

type glyph struct {
	char string
	fill string
	y    float64
}

type line struct {
	x1, y1, x2, y2 float64
	stroke         string
	width          float64
	opacity        float64
}

type dot struct {
	cx, cy, r float64
	fill      string
	opacity   float64
}

type scene struct {
	background string
	rotate     float64
	glyphs     []glyph
	lines      []line
	dots       []dot
}

func (g *Generator) pick(palette []string) string {
	return palette[g.rng.IntN(len(palette))]
}

func (g *Generator) scene(p Puzzle) scene {
	g.lock.Lock()
	defer g.lock.Unlock()

	s := scene{
		background: g.pick(backgrounds),
		rotate:     g.uniform(-MaxRotation, MaxRotation),
	}

	for _, r := range p.Expression() {
		s.glyphs = append(s.glyphs, glyph{
			char: string(r),
			fill: g.pick(accents),
			y:    baseline + g.uniform(-3, 3),
		})
	}

	for range NoiseLines {
		s.lines = append(s.lines, line{
			x1:      g.uniform(0, Width),
			y1:      g.uniform(0, Height),
			x2:      g.uniform(0, Width),
			y2:      g.uniform(0, Height),
			stroke:  g.pick(accents),
			width:   g.uniform(1, 2),
			opacity: g.uniform(0.2, 0.5),
		})
	}

	for range NoiseDots {
		s.dots = append(s.dots, dot{
			cx:      g.uniform(0, Width),
			cy:      g.uniform(0, Height),
			r:       g.uniform(1, 2.5),
			fill:    g.pick(accents),
			opacity: g.uniform(0.2, 0.5),
		})
	}

	return s
}

func (s scene) render(_ context.Context, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, Width, Height, Width, Height)
	ew.printf(`<rect width="100%%" height="100%%" fill="%s"/>`, s.background)

	for _, l := range s.lines {
		ew.printf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f" opacity="%.2f"/>`,
			l.x1, l.y1, l.x2, l.y2, l.stroke, l.width, l.opacity)
	}

	ew.printf(`<text x="%d" y="%d" text-anchor="middle" font-family="monospace" font-size="28" font-weight="bold" xml:space="preserve" transform="rotate(%.1f %d %d)">`,
		Width/2, baseline, s.rotate, Width/2, Height/2)
	for _, gl := range s.glyphs {
		ew.printf(`<tspan y="%.1f" fill="%s">%s</tspan>`, gl.y, gl.fill, templ.EscapeString(gl.char))
	}
	ew.printf(`</text>`)

	for _, d := range s.dots {
		ew.printf(`<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s" opacity="%.2f"/>`, d.cx, d.cy, d.r, d.fill, d.opacity)
	}

	ew.printf(`</svg>`)

	return ew.err
}

// Render draws p with fresh noise. Every call gives a different picture of
// the same question.
func (g *Generator) Render(p Puzzle) templ.Component {
	return templ.ComponentFunc(g.scene(p).render)
}

// DataURI renders c and wraps the result in a base64 SVG data URI that can
// go straight into an <img src>.
func DataURI(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("puzzle: can't render image: %w", err)
	}

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
