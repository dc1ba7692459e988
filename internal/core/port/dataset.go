package port

import (
	"context"

	"github.com/guillermoBallester/tabula/internal/core/domain"
)

// Dataset is one entry of the dataset-listing collaborator.
type Dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ViewPage is the dataset-view collaborator's answer: a page of rows (or the
// whole table for unpaginated requests), the column metadata and the number
// of rows matching the search and filters.
type ViewPage struct {
	Rows    []domain.Row    `json:"data"`
	Columns []domain.Column `json:"columns"`
	Total   int             `json:"total"`
}

// DatasetSource is the collaborator that lists datasets and serves views.
type DatasetSource interface {
	ListDatasets(ctx context.Context) ([]Dataset, error)
	// View returns the slice of the dataset selected by params. Unpaginated
	// params return every matching row.
	View(ctx context.Context, datasetID string, params domain.ViewParams) (*ViewPage, error)
}
