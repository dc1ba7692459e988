package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrEmptySeries is returned for a spec with nothing to draw.
var ErrEmptySeries = errors.New("chart series is empty")

const (
	defaultWidth  = 1024
	defaultHeight = 512
	// maxLabels caps the y-axis labels drawn; AxisScale may carry up to
	// domain.MaxTicks ticks.
	maxLabels = 11
)

var palette = []drawing.Color{
	drawing.ColorFromHex("4e79a7"),
	drawing.ColorFromHex("f28e2b"),
	drawing.ColorFromHex("e15759"),
	drawing.ColorFromHex("76b7b2"),
	drawing.ColorFromHex("59a14f"),
	drawing.ColorFromHex("edc948"),
	drawing.ColorFromHex("b07aa1"),
	drawing.ColorFromHex("ff9da7"),
	drawing.ColorFromHex("9c755f"),
	drawing.ColorFromHex("bab0ac"),
}

// Renderer draws chart specs with go-chart.
type Renderer struct {
	width  int
	height int
}

var _ port.ChartRenderer = (*Renderer)(nil)

// NewRenderer creates a renderer producing images of the given size. Zero
// dimensions select 1024x512.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	return &Renderer{width: width, height: height}
}

func (r *Renderer) Render(w io.Writer, spec domain.ChartSpec, format port.ImageFormat) error {
	if len(spec.Series) == 0 {
		return ErrEmptySeries
	}

	var provider chart.RendererProvider
	switch format {
	case port.FormatPNG, "":
		provider = chart.PNG
	case port.FormatSVG:
		provider = chart.SVG
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}

	var err error
	switch spec.Type {
	case domain.ChartBar, "":
		err = r.bar(spec).Render(provider, w)
	case domain.ChartLine:
		err = r.line(spec).Render(provider, w)
	case domain.ChartPie:
		var pie chart.PieChart
		pie, err = r.pie(spec)
		if err == nil {
			err = pie.Render(provider, w)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidChartType, spec.Type)
	}
	if err != nil {
		return fmt.Errorf("rendering %s chart: %w", spec.Type, err)
	}
	return nil
}

func (r *Renderer) bar(spec domain.ChartSpec) chart.BarChart {
	bars := make([]chart.Value, len(spec.Series))
	for i, p := range spec.Series {
		bars[i] = chart.Value{
			Label: p.Category,
			Value: p.Value,
			Style: chart.Style{
				FillColor:   palette[i%len(palette)],
				StrokeColor: palette[i%len(palette)],
			},
		}
	}

	barWidth := (r.width - 120) / (len(bars) * 2)
	barWidth = max(2, min(barWidth, 60))

	return chart.BarChart{
		Title:      title(spec),
		Width:      r.width,
		Height:     r.height,
		BarWidth:   barWidth,
		BarSpacing: barWidth,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis:      valueAxis(spec),
		Bars:       bars,
	}
}

func (r *Renderer) line(spec domain.ChartSpec) chart.Chart {
	n := len(spec.Series)
	xs := make([]float64, n)
	ys := make([]float64, n)
	ticks := make([]chart.Tick, n)
	for i, p := range spec.Series {
		xs[i] = float64(i)
		ys[i] = p.Value
		ticks[i] = chart.Tick{Value: float64(i), Label: p.Category}
	}

	return chart.Chart{
		Title:      title(spec),
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  spec.CategoryColumn,
			Ticks: ticks,
			// A fixed range keeps single-point series renderable.
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(n) - 0.5},
		},
		YAxis: valueAxis(spec),
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    spec.ValueColumn,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: palette[0],
					StrokeWidth: 2,
					DotColor:    palette[0],
					DotWidth:    4,
				},
			},
		},
	}
}

// pie keeps the positive slices only; a share of a whole is undefined for
// negative or zero values.
func (r *Renderer) pie(spec domain.ChartSpec) (chart.PieChart, error) {
	var values []chart.Value
	for i, p := range spec.Series {
		if p.Value <= 0 || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%.1f%%)", p.Category, spec.Percent(i)),
			Value: p.Value,
			Style: chart.Style{FillColor: palette[len(values)%len(palette)]},
		})
	}
	if len(values) == 0 {
		return chart.PieChart{}, ErrEmptySeries
	}
	return chart.PieChart{
		Title:  title(spec),
		Width:  r.width,
		Height: r.height,
		Values: values,
	}, nil
}

func title(spec domain.ChartSpec) string {
	return spec.ValueColumn + " by " + spec.CategoryColumn
}

// valueAxis maps the computed AxisScale onto a go-chart y-axis, extending
// the range below zero when the series has negative values.
func valueAxis(spec domain.ChartSpec) chart.YAxis {
	lo := spec.Axis.DomainMin
	for _, v := range spec.Series.Values() {
		lo = math.Min(lo, v)
	}
	hi := spec.Axis.DomainMax
	if hi <= lo {
		hi = lo + 1
	}

	return chart.YAxis{
		Name:  spec.ValueColumn,
		Range: &chart.ContinuousRange{Min: lo, Max: hi},
		Ticks: yTicks(spec.Axis, lo),
	}
}

// yTicks thins the axis ticks to at most maxLabels, always keeping the
// first and the last one.
func yTicks(axis domain.AxisScale, lo float64) []chart.Tick {
	if len(axis.Ticks) == 0 || lo < axis.DomainMin {
		return nil
	}
	every := max((len(axis.Ticks)+maxLabels-3)/(maxLabels-1), 1)

	var ticks []chart.Tick
	last := len(axis.Ticks) - 1
	for i, v := range axis.Ticks {
		if i%every != 0 && i != last {
			continue
		}
		ticks = append(ticks, chart.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', -1, 64)})
	}
	return ticks
}
