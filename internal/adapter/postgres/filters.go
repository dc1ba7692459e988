package postgres

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/guillermoBallester/tabula/internal/core/domain"
)

// schemaFilter returns a SQL WHERE clause fragment and args for filtering by schema.
// paramOffset is the starting $N parameter index (1-based).
// When schemas is empty, it excludes system schemas (pg_catalog, information_schema).
func schemaFilter(schemas []string, column string, paramOffset int) (clause string, args []any) {
	if len(schemas) == 0 {
		return fmt.Sprintf("%s NOT IN ('pg_catalog', 'information_schema')", column), nil
	}
	placeholders := make([]string, len(schemas))
	args = make([]any, len(schemas))
	for i, s := range schemas {
		placeholders[i] = fmt.Sprintf("$%d", paramOffset+i)
		args[i] = s
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), args
}

// quoteIdent quotes a SQL identifier to prevent injection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// datasetID names a table as "schema.table".
func datasetID(schema, table string) string {
	return schema + "." + table
}

// splitDatasetID splits "schema.table". A bare name defaults to public.
func splitDatasetID(id string) (schema, table string) {
	if i := strings.IndexByte(id, '.'); i > 0 {
		return id[:i], id[i+1:]
	}
	return "public", id
}

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// whereBuilder accumulates AND-ed predicates with positional args.
type whereBuilder struct {
	preds []string
	args  []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(pred string) {
	w.preds = append(w.preds, pred)
}

func (w *whereBuilder) String() string {
	if len(w.preds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.preds, " AND ")
}

// buildWhere turns the search term and column filters into a predicate.
// Search matches any cell case-insensitively; filters compare the text of a
// cell for exact equality. Filters on unknown columns are ignored.
func buildWhere(columns []string, params domain.ViewParams) *whereBuilder {
	w := &whereBuilder{}
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}

	if params.Search != "" && len(columns) > 0 {
		p := w.arg("%" + escapeLike(params.Search) + "%")
		ors := make([]string, len(columns))
		for i, c := range columns {
			ors[i] = fmt.Sprintf("%s::text ILIKE %s", quoteIdent(c), p)
		}
		w.add("(" + strings.Join(ors, " OR ") + ")")
	}

	for _, col := range slices.Sorted(maps.Keys(params.Filters)) {
		if !known[col] {
			continue
		}
		w.add(fmt.Sprintf("%s::text = %s", quoteIdent(col), w.arg(params.Filters[col])))
	}
	return w
}

// orderAndLimit builds the ORDER BY / LIMIT / OFFSET suffix. Sorting on an
// unknown column is ignored.
func orderAndLimit(columns []string, params domain.ViewParams, w *whereBuilder) string {
	var b strings.Builder
	for _, c := range columns {
		if c == params.SortColumn {
			dir := "ASC"
			if params.SortOrder == domain.SortDesc {
				dir = "DESC"
			}
			fmt.Fprintf(&b, " ORDER BY %s %s NULLS LAST", quoteIdent(c), dir)
			break
		}
	}
	if params.Paginated() {
		fmt.Fprintf(&b, " LIMIT %s OFFSET %s", w.arg(params.Limit), w.arg(params.Offset()))
	}
	return b.String()
}
