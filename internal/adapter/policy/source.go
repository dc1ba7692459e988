package policy

import (
	"context"
	"maps"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
)

// Source decorates a DatasetSource with the display policy: descriptions are
// merged into listings and column metadata, masked columns are masked in
// rows and samples.
type Source struct {
	inner  port.DatasetSource
	policy *Policy
}

var _ port.DatasetSource = (*Source)(nil)

// NewSource wraps inner with pol. A nil policy passes everything through.
func NewSource(inner port.DatasetSource, pol *Policy) *Source {
	return &Source{inner: inner, policy: pol}
}

func (s *Source) ListDatasets(ctx context.Context) ([]port.Dataset, error) {
	datasets, err := s.inner.ListDatasets(ctx)
	if err != nil || s.policy == nil {
		return datasets, err
	}
	MergeDatasets(datasets, s.policy.Context)
	return datasets, nil
}

// View masks the page before it leaves the decorator. Filters on masked
// columns are dropped so raw values cannot be probed through them.
func (s *Source) View(ctx context.Context, datasetID string, params domain.ViewParams) (*port.ViewPage, error) {
	dc, ok := s.policy.Lookup(datasetID)
	if !ok {
		return s.inner.View(ctx, datasetID, params)
	}

	masks := dc.Masks()
	if len(masks) > 0 && len(params.Filters) > 0 {
		filters := maps.Clone(params.Filters)
		for col := range masks {
			delete(filters, col)
		}
		params.Filters = filters
	}

	page, err := s.inner.View(ctx, datasetID, params)
	if err != nil {
		return nil, err
	}
	MergeColumns(page.Columns, dc)
	domain.MaskColumns(page.Columns, masks)
	domain.MaskRows(page.Rows, masks)
	return page, nil
}
