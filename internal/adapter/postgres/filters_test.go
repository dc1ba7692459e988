package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestSchemaFilter(t *testing.T) {
	t.Parallel()
	clause, args := schemaFilter(nil, "t.table_schema", 1)
	assert.Equal(t, "t.table_schema NOT IN ('pg_catalog', 'information_schema')", clause)
	assert.Nil(t, args)

	clause, args = schemaFilter([]string{"public", "app"}, "t.table_schema", 2)
	assert.Equal(t, "t.table_schema IN ($2, $3)", clause)
	assert.Equal(t, []any{"public", "app"}, args)
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"users"`, quoteIdent("users"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}

func TestSplitDatasetID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id, schema, table string
	}{
		{"public.sales", "public", "sales"},
		{"sales", "public", "sales"},
		{"app.user.events", "app", "user.events"},
		{".sales", "public", ".sales"},
	}
	for _, tt := range tests {
		schema, table := splitDatasetID(tt.id)
		assert.Equal(t, tt.schema, schema, tt.id)
		assert.Equal(t, tt.table, table, tt.id)
	}
	assert.Equal(t, "app.events", datasetID("app", "events"))
}

func TestBuildWhere(t *testing.T) {
	t.Parallel()
	cols := []string{"city", "amount"}

	tests := []struct {
		name   string
		params domain.ViewParams
		want   string
		args   []any
	}{
		{
			name: "nothing",
			want: "TRUE",
		},
		{
			name:   "search",
			params: domain.ViewParams{Search: "50%_off"},
			want:   `("city"::text ILIKE $1 OR "amount"::text ILIKE $1)`,
			args:   []any{`%50\%\_off%`},
		},
		{
			name:   "filters sorted and unknown ignored",
			params: domain.ViewParams{Filters: map[string]string{"city": "Paris", "amount": "10", "ghost": "x"}},
			want:   `"amount"::text = $1 AND "city"::text = $2`,
			args:   []any{"10", "Paris"},
		},
		{
			name:   "search and filter",
			params: domain.ViewParams{Search: "a", Filters: map[string]string{"city": "Lyon"}},
			want:   `("city"::text ILIKE $1 OR "amount"::text ILIKE $1) AND "city"::text = $2`,
			args:   []any{"%a%", "Lyon"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := buildWhere(cols, tt.params)
			assert.Equal(t, tt.want, w.String())
			assert.Equal(t, tt.args, w.args)
		})
	}
}

func TestOrderAndLimit(t *testing.T) {
	t.Parallel()
	cols := []string{"city", "amount"}

	w := &whereBuilder{}
	w.arg("x")
	got := orderAndLimit(cols, domain.ViewParams{Page: 3, Limit: 10, SortColumn: "amount", SortOrder: domain.SortDesc}, w)
	assert.Equal(t, ` ORDER BY "amount" DESC NULLS LAST LIMIT $2 OFFSET $3`, got)
	assert.Equal(t, []any{"x", 10, 20}, w.args)

	w = &whereBuilder{}
	got = orderAndLimit(cols, domain.ViewParams{SortColumn: "ghost"}, w)
	assert.Empty(t, got, "unknown sort column and unpaginated request add nothing")
	assert.Empty(t, w.args)
}

func TestCellValue(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}

	tests := []struct {
		name string
		in   any
		want domain.Value
	}{
		{"nil", nil, domain.Null()},
		{"int32", int32(7), domain.Number(7)},
		{"float", 2.5, domain.Number(2.5)},
		{"bool", true, domain.Bool(true)},
		{"text", "Paris", domain.String("Paris")},
		{"numeric", pgtype.Numeric{Int: bigInt(1250), Exp: -2, Valid: true}, domain.Number(12.5)},
		{"invalid numeric", pgtype.Numeric{}, domain.Null()},
		{"uuid", id, domain.String("12345678-9abc-def0-1234-56789abcdef0")},
		{"timestamp", ts, domain.String("2026-01-02T03:04:05Z")},
		{"bytea", []byte{0xde, 0xad}, domain.String(`\xdead`)},
		{"jsonb", map[string]any{"a": 1.0}, domain.String(`{"a":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cellValue(tt.in))
		})
	}
}

func bigInt(n int64) *big.Int { return big.NewInt(n) }
