package domain

// ColumnKind is the semantic type inferred for a column.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// Column is a column's metadata as reported by the dataset-view collaborator.
// SampleValues is a bounded subset of the column's distinct values.
type Column struct {
	Name         string   `json:"name"`
	SampleValues []string `json:"unique_values"`
	Description  string   `json:"description,omitempty"`
}

// ClassifiedColumn is a Column together with its inferred kind.
type ClassifiedColumn struct {
	Column
	Kind ColumnKind `json:"kind"`
}

// Classify infers a column's kind from its sample values. A column is
// numeric only if it has at least one sample and every sample parses as a
// finite number; anything else is categorical. Classification depends on
// the values alone, so "007" counts as numeric.
func Classify(col Column) ColumnKind {
	if len(col.SampleValues) == 0 {
		return KindCategorical
	}
	for _, v := range col.SampleValues {
		if _, ok := ParseNumber(v); !ok {
			return KindCategorical
		}
	}
	return KindNumeric
}

// ClassifyColumns classifies every column, preserving order.
func ClassifyColumns(cols []Column) []ClassifiedColumn {
	out := make([]ClassifiedColumn, len(cols))
	for i, c := range cols {
		out[i] = ClassifiedColumn{Column: c, Kind: Classify(c)}
	}
	return out
}

// SplitByKind returns the numeric and categorical column names, each in
// column order.
func SplitByKind(cols []ClassifiedColumn) (numeric, categorical []string) {
	numeric = []string{}
	categorical = []string{}
	for _, c := range cols {
		if c.Kind == KindNumeric {
			numeric = append(numeric, c.Name)
		} else {
			categorical = append(categorical, c.Name)
		}
	}
	return numeric, categorical
}
