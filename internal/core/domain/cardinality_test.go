package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyGrouping(t *testing.T) {
	tests := []struct {
		name       string
		categories int
		rows       int
		want       CardinalityClass
	}{
		{"every row its own category", 100, 100, CardinalityUnique},
		{"near unique (95%)", 95, 100, CardinalityNearUnique},
		{"near unique threshold (90%)", 90, 100, CardinalityNearUnique},
		{"enum-like (3 of 1000)", 3, 1000, CardinalityEnumLike},
		{"enum-like limit", 12, 1000, CardinalityEnumLike},
		{"low cardinality", 13, 1000, CardinalityLowCardinality},
		{"low cardinality limit", 50, 1000, CardinalityLowCardinality},
		{"high cardinality", 500, 1000, CardinalityHighCardinality},
		{"single row", 1, 1, CardinalityEnumLike},
		{"empty", 0, 0, CardinalityEnumLike},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyGrouping(tt.categories, tt.rows))
		})
	}
}

func TestCardinalityClass_Aggregates(t *testing.T) {
	assert.False(t, CardinalityUnique.Aggregates())
	assert.False(t, CardinalityNearUnique.Aggregates())
	assert.True(t, CardinalityEnumLike.Aggregates())
	assert.True(t, CardinalityHighCardinality.Aggregates())
}
