package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source serves datasets straight from PostgreSQL tables and views. Every
// table in the configured schemas is a dataset with id "schema.table".
type Source struct {
	pool        *pgxpool.Pool
	schemas     []string // empty means all non-system schemas
	sampleLimit int
	timeout     time.Duration
}

var _ port.DatasetSource = (*Source)(nil)

func NewSource(pool *pgxpool.Pool, schemas []string, sampleLimit int, timeout time.Duration) *Source {
	if sampleLimit <= 0 {
		sampleLimit = 50
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{pool: pool, schemas: schemas, sampleLimit: sampleLimit, timeout: timeout}
}

func (s *Source) ListDatasets(ctx context.Context) ([]port.Dataset, error) {
	filter, args := schemaFilter(s.schemas, "t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	datasets := []port.Dataset{}
	for rows.Next() {
		var schema, table, comment string
		if err := rows.Scan(&schema, &table, &comment); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		datasets = append(datasets, port.Dataset{
			ID:          datasetID(schema, table),
			Name:        table,
			Description: comment,
		})
	}
	return datasets, rows.Err()
}

// View answers the dataset-view contract: column samples are taken from the
// whole table, while total and rows reflect search and filters.
func (s *Source) View(ctx context.Context, id string, params domain.ViewParams) (*port.ViewPage, error) {
	schema, table := splitDatasetID(id)
	if !s.schemaAllowed(schema) {
		return nil, fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
	}
	qualified := quoteIdent(schema) + "." + quoteIdent(table)

	page := &port.ViewPage{}
	err := readOnly(ctx, s.pool, s.timeout, func(tx pgx.Tx) error {
		cols, err := s.columns(ctx, tx, schema, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
		}
		page.Columns = cols

		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}

		where := buildWhere(names, params)
		countArgs := slices.Clone(where.args)
		if err := tx.QueryRow(ctx, fmt.Sprintf(queryCount, qualified, where), countArgs...).Scan(&page.Total); err != nil {
			return fmt.Errorf("counting rows of %s: %w", id, err)
		}

		suffix := orderAndLimit(names, params, where)
		rows, err := tx.Query(ctx, fmt.Sprintf(querySelect, qualified, where, suffix), where.args...)
		if err != nil {
			return fmt.Errorf("selecting rows of %s: %w", id, err)
		}
		defer rows.Close()

		page.Rows, err = rowsToCells(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Source) columns(ctx context.Context, tx pgx.Tx, schema, table string) ([]domain.Column, error) {
	rows, err := tx.Query(ctx, queryColumns, schema, table)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	var cols []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.Name, &c.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		cols = append(cols, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	qualified := quoteIdent(schema) + "." + quoteIdent(table)
	for i := range cols {
		samples, err := s.samples(ctx, tx, qualified, cols[i].Name)
		if err != nil {
			return nil, err
		}
		cols[i].SampleValues = samples
	}
	return cols, nil
}

func (s *Source) samples(ctx context.Context, tx pgx.Tx, qualified, column string) ([]string, error) {
	query := fmt.Sprintf(querySampleValues, quoteIdent(column), qualified)
	rows, err := tx.Query(ctx, query, s.sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("sampling column %s: %w", column, err)
	}
	defer rows.Close()

	samples := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning sample of %s: %w", column, err)
		}
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sampling column %s: %w", column, err)
	}
	return samples, nil
}

func (s *Source) schemaAllowed(schema string) bool {
	if len(s.schemas) == 0 {
		return schema != "pg_catalog" && schema != "information_schema"
	}
	return slices.Contains(s.schemas, schema)
}
