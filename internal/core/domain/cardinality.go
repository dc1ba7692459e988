package domain

// CardinalityClass describes how strongly a category column groups rows.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityNearUnique      CardinalityClass = "near_unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
)

// Category-count limits for the grouping classes. enumLikeMax is roughly the
// number of pie slices that stay legible.
const (
	enumLikeMax       = 12
	lowCardinalityMax = 50
)

// ClassifyGrouping classifies an aggregation by how many categories it
// produced from how many rows. A unique grouping means every row became its
// own category, so the chart shows raw rows instead of an aggregate.
func ClassifyGrouping(categories, rows int) CardinalityClass {
	if rows > 1 && categories == rows {
		return CardinalityUnique
	}
	if rows > 1 && float64(categories)/float64(rows) >= 0.9 {
		return CardinalityNearUnique
	}

	switch {
	case categories <= enumLikeMax:
		return CardinalityEnumLike
	case categories <= lowCardinalityMax:
		return CardinalityLowCardinality
	default:
		return CardinalityHighCardinality
	}
}

// Aggregates reports whether the grouping actually collapses rows.
func (c CardinalityClass) Aggregates() bool {
	return c != CardinalityUnique && c != CardinalityNearUnique
}
