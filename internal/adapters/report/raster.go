// Package report turns a rendered timeline into durable artifacts: a PNG
// raster of the step chart, a single-page XLSX daily log holding that raster,
// and the sinks those artifacts are written to.
package report

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okian/eldlog/internal/domain/projection"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

var (
	colorStep     = drawing.ColorFromHex("1f4e79")
	colorPending  = drawing.ColorFromHex("e69500")
	colorFallback = drawing.ColorFromHex("c0392b")
	colorGrid     = drawing.ColorFromHex("d9d9d9")
)

// Rasterizer draws a render model as a fixed-size PNG.
type Rasterizer struct {
	width  int
	height int
	logger logger.Logger
}

// NewRasterizer creates a Rasterizer. WithSize and WithLogger apply.
func NewRasterizer(opts ...Option) *Rasterizer {
	o := applyOptions("rasterizer", opts)
	return &Rasterizer{width: o.width, height: o.height, logger: o.logger}
}

// Size returns the raster size in pixels.
func (r *Rasterizer) Size() (int, int) { return r.width, r.height }

// Render encodes m as PNG.
func (r *Rasterizer) Render(ctx context.Context, m render.Model) ([]byte, error) {
	start := time.Now()
	img := r.Image(ctx, m)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: png: %w", ErrEncode, err)
	}

	r.logger.Debug(ctx, "raster rendered",
		logger.Int("steps", len(m.Steps)),
		logger.Int("bytes", buf.Len()),
		logger.Duration("elapsed", time.Since(start)),
	)
	return buf.Bytes(), nil
}

// Image draws m. A chart that cannot be drawn leaves a blank canvas with the
// overlay so the caller always gets a picture of the right size.
func (r *Rasterizer) Image(ctx context.Context, m render.Model) image.Image {
	var img image.Image
	if len(m.Steps) == 0 {
		img = blank(r.width, r.height)
	} else {
		var err error
		if img, err = r.chart(m); err != nil {
			r.logger.Warn(ctx, "chart render failed, using blank canvas", logger.Error(err))
			metrics.RecordErrorByComponent("report", "raster")
			img = blank(r.width, r.height)
		}
	}
	return overlay(img, header(m), footer(m))
}

func (r *Rasterizer) chart(m render.Model) (image.Image, error) {
	ch := chart.Chart{
		Background: chart.Style{Padding: chart.Box{Top: 28, Left: 16, Right: 16, Bottom: 40}},
		XAxis:      xAxis(m),
		YAxis:      yAxis(),
		Series:     series(m),
		Width:      r.width,
		Height:     r.height,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// row maps a status level to a chart value so Off Duty sits on the top row.
func row(level int) float64 {
	return float64(status.Count - 1 - level)
}

func yAxis() chart.YAxis {
	ticks := make([]chart.Tick, 0, status.Count)
	for i := status.Count - 1; i >= 0; i-- {
		s := status.Status(i)
		ticks = append(ticks, chart.Tick{Value: row(s.Level()), Label: status.Label(s)})
	}
	return chart.YAxis{
		Range: &chart.ContinuousRange{Min: -0.5, Max: float64(status.Count) - 0.5},
		Ticks: ticks,
	}
}

func xAxis(m render.Model) chart.XAxis {
	ticks := make([]chart.Tick, 0, len(m.HourlyTicks))
	grid := make([]chart.GridLine, 0, len(m.HourlyTicks))
	for i, t := range m.HourlyTicks {
		v := chart.TimeToFloat64(t.Time)
		grid = append(grid, chart.GridLine{Value: v})
		label := t.Label
		if i%2 == 1 {
			label = ""
		}
		ticks = append(ticks, chart.Tick{Value: v, Label: label})
	}
	return chart.XAxis{
		Range: &chart.ContinuousRange{
			Min: chart.TimeToFloat64(m.Window.Start),
			Max: chart.TimeToFloat64(m.Window.End),
		},
		Ticks:          ticks,
		GridLines:      grid,
		GridMajorStyle: chart.Style{StrokeColor: colorGrid, StrokeWidth: 1},
	}
}

func series(m render.Model) []chart.Series {
	xs := make([]time.Time, len(m.Steps))
	ys := make([]float64, len(m.Steps))
	for i, p := range m.Steps {
		xs[i] = p.Time
		ys[i] = row(p.Level)
	}
	out := []chart.Series{chart.TimeSeries{
		Name:    "Status",
		XValues: xs,
		YValues: ys,
		Style:   chart.Style{StrokeColor: colorStep, StrokeWidth: 2},
	}}

	if s, ok := markers("Pending", m.Vertices, func(v projection.Vertex) bool { return v.Pending }, colorPending); ok {
		out = append(out, s)
	}
	if s, ok := markers("Unrecognized", m.Vertices, func(v projection.Vertex) bool { return v.Fallback }, colorFallback); ok {
		out = append(out, s)
	}
	return out
}

// markers returns a dot-only series of the vertices matching keep.
func markers(name string, vs []projection.Vertex, keep func(projection.Vertex) bool, col drawing.Color) (chart.TimeSeries, bool) {
	var (
		xs []time.Time
		ys []float64
	)
	for _, v := range vs {
		if keep(v) {
			xs = append(xs, v.Time)
			ys = append(ys, row(v.Level))
		}
	}
	switch len(xs) {
	case 0:
		return chart.TimeSeries{}, false
	case 1:
		// a single value has no x range of its own
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
	}
	return chart.TimeSeries{Name: name, XValues: xs, YValues: ys, Style: pointStyle(col)}, true
}

// pointStyle renders points only.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 0,
		DotWidth:    5,
		DotColor:    col,
	}
}

func header(m render.Model) string {
	parts := []string{m.Window.Start.Format("Mon 2006-01-02 MST")}
	if m.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", m.Pending))
	}
	if m.Stale {
		parts = append(parts, "stale")
	}
	if m.Banner != "" {
		parts = append(parts, m.Banner)
	}
	if len(m.Steps) == 0 {
		parts = append(parts, "no status records")
	}
	return strings.Join(parts, "  |  ")
}

func footer(m render.Model) string {
	parts := make([]string, 0, len(m.Totals)+1)
	for _, t := range m.Totals {
		parts = append(parts, t.Label+" "+t.Formatted)
	}
	parts = append(parts, "Total "+m.TotalSum)
	return strings.Join(parts, "   ")
}

func blank(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// overlay writes top along the upper edge and bottom along the lower edge.
func overlay(img image.Image, top, bottom string) image.Image {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)

	face := basicfont.Face7x13
	ink := image.NewUniform(color.RGBA{R: 32, G: 32, B: 32, A: 255})
	if top != "" {
		drawText(rgba, face, ink, b.Min.X+16, b.Min.Y+face.Metrics().Ascent.Ceil()+6, top)
	}
	if bottom != "" {
		drawText(rgba, face, ink, b.Min.X+16, b.Max.Y-8, bottom)
	}
	return rgba
}

func drawText(dst draw.Image, face font.Face, src image.Image, x, y int, text string) {
	dr := &font.Drawer{Dst: dst, Src: src, Face: face, Dot: fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}}
	dr.DrawString(text)
}
