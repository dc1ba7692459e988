package domain

// DefaultNullLabel is the category that null or missing cells are grouped
// under unless AggregateOptions says otherwise. It matches the bucket name
// existing dashboards already show.
const DefaultNullLabel = "undefined"

// SeriesPoint is one aggregated category.
type SeriesPoint struct {
	Category string  `json:"name"`
	Value    float64 `json:"value"`
}

// Series is an ordered list of aggregated categories in first-seen order.
type Series []SeriesPoint

// Values returns the series values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Total sums all series values.
func (s Series) Total() float64 {
	var sum float64
	for _, p := range s {
		sum += p.Value
	}
	return sum
}

// AggregateOptions tunes how cells are coerced during aggregation.
type AggregateOptions struct {
	// NullLabel names the bucket for null or missing category cells.
	// Empty means DefaultNullLabel.
	NullLabel string
}

// Aggregate groups rows by the text of categoryColumn and sums valueColumn.
// Values that do not coerce to a finite number count as 0. The result keeps
// the order in which categories were first seen and is freshly allocated on
// every call.
func Aggregate(rows []Row, categoryColumn, valueColumn string, opts AggregateOptions) Series {
	nullLabel := opts.NullLabel
	if nullLabel == "" {
		nullLabel = DefaultNullLabel
	}

	series := Series{}
	index := make(map[string]int)
	for _, row := range rows {
		category := row.Get(categoryColumn).Text(nullLabel)
		value, ok := row.Get(valueColumn).Float()
		if !ok {
			value = 0
		}

		i, seen := index[category]
		if !seen {
			index[category] = len(series)
			series = append(series, SeriesPoint{Category: category, Value: value})
			continue
		}
		series[i].Value += value
	}
	return series
}
