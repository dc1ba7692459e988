package port

import (
	"io"

	"github.com/guillermoBallester/tabula/internal/core/domain"
)

// ImageFormat is the output encoding of a rendered chart.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
)

// ChartRenderer draws a chart spec.
type ChartRenderer interface {
	Render(w io.Writer, spec domain.ChartSpec, format ImageFormat) error
}
