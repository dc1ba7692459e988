package domain

import (
	"fmt"
	"strings"
)

// ChartType selects how a series is drawn.
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

// ParseChartType accepts bar, line or pie in any case.
func ParseChartType(s string) (ChartType, error) {
	switch t := ChartType(strings.ToLower(strings.TrimSpace(s))); t {
	case ChartBar, ChartLine, ChartPie:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChartType, s)
	}
}

// ChartSpec is everything a renderer needs to draw an aggregated series.
type ChartSpec struct {
	DatasetID      string           `json:"dataset_id"`
	Type           ChartType        `json:"type"`
	CategoryColumn string           `json:"category_column"`
	ValueColumn    string           `json:"value_column"`
	Series         Series           `json:"series"`
	Axis           AxisScale        `json:"axis"`
	Rows           int              `json:"rows"`
	Grouping       CardinalityClass `json:"grouping"`
}

// Percent returns the share of point i in the series total, in [0, 100].
// A zero total yields 0 for every point.
func (c ChartSpec) Percent(i int) float64 {
	total := c.Series.Total()
	if total == 0 || i < 0 || i >= len(c.Series) {
		return 0
	}
	return c.Series[i].Value / total * 100
}
