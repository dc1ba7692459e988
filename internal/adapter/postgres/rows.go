package postgres

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsToCells converts pgx.Rows into domain rows keyed by column name.
func rowsToCells(rows pgx.Rows) ([]domain.Row, error) {
	fields := rows.FieldDescriptions()
	result := []domain.Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(domain.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = cellValue(vals[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

// cellValue maps the Go values pgx decodes into tagged cells. Numerics
// become numbers when they fit a float64; temporal and identifier types
// become their canonical text.
func cellValue(v any) domain.Value {
	switch t := v.(type) {
	case nil:
		return domain.Null()
	case pgtype.Numeric:
		if !t.Valid || t.NaN {
			return domain.Null()
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return domain.Null()
		}
		return domain.Number(f.Float64)
	case [16]byte:
		return domain.String(uuid.UUID(t).String())
	case time.Time:
		return domain.String(t.UTC().Format(time.RFC3339Nano))
	case time.Duration:
		return domain.String(t.String())
	case pgtype.Interval:
		if !t.Valid {
			return domain.Null()
		}
		return domain.String(fmt.Sprintf("%d months %d days %s", t.Months, t.Days, time.Duration(t.Microseconds)*time.Microsecond))
	case netip.Prefix:
		return domain.String(t.String())
	case []byte:
		return domain.String(`\x` + hex.EncodeToString(t))
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return domain.String(fmt.Sprintf("%v", t))
		}
		return domain.String(string(b))
	default:
		return domain.ValueOf(v)
	}
}
