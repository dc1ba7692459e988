package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaskType is a column masking strategy applied before cells are shown.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a known strategy. The zero value means no mask.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// MaskValue transforms a cell according to m. Null cells stay null. Every
// strategy except MaskNull turns the cell into a string, so a masked column
// always classifies as categorical.
func MaskValue(v Value, m MaskType) Value {
	if v.IsNull() {
		return v
	}
	switch m {
	case MaskRedact:
		return String("***")
	case MaskHash:
		return String(hashText(v.Text("")))
	case MaskPartial:
		return String(maskPartial(v.Text("")))
	case MaskNull:
		return Null()
	default:
		return v
	}
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// maskPartial keeps the last 4 runes and stars out the rest.
func maskPartial(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	keep := len(runes) - 4
	return strings.Repeat("*", keep) + string(runes[keep:])
}

// MaskRows applies masks (column name → strategy) to rows in place.
func MaskRows(rows []Row, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, m := range masks {
			if v, ok := row[col]; ok {
				row[col] = MaskValue(v, m)
			}
		}
	}
}

// MaskColumns masks sample values in place so they never reveal more than
// the masked cells. MaskNull drops the samples entirely.
func MaskColumns(cols []Column, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for i, c := range cols {
		m, ok := masks[c.Name]
		if !ok || m == "" {
			continue
		}
		if m == MaskNull {
			cols[i].SampleValues = []string{}
			continue
		}
		samples := make([]string, len(c.SampleValues))
		for j, s := range c.SampleValues {
			samples[j] = MaskValue(String(s), m).Str
		}
		cols[i].SampleValues = samples
	}
}
