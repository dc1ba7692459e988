package domain

import (
	"fmt"
	"maps"
	"strings"
)

// DefaultPageSize is the number of rows per table page.
const DefaultPageSize = 10

// SortOrder is the direction of the applied sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder accepts "asc" or "desc" in any case. Empty means asc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return SortAsc, nil
	case "desc":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortOrder, s)
	}
}

// ViewState is the pagination, sort and search state of the table view.
type ViewState struct {
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	SortColumn string            `json:"sort_column,omitempty"`
	SortOrder  SortOrder         `json:"sort_order"`
	Search     string            `json:"search"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// DefaultViewState returns the state a freshly selected dataset starts in.
func DefaultViewState(pageSize int) ViewState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return ViewState{Page: 1, PageSize: pageSize, SortOrder: SortAsc}
}

// Clone returns a copy that shares no mutable state with s.
func (s ViewState) Clone() ViewState {
	s.Filters = maps.Clone(s.Filters)
	return s
}

// Params serializes the state into collaborator request parameters.
func (s ViewState) Params() ViewParams {
	return ViewParams{
		Page:       s.Page,
		Limit:      s.PageSize,
		SortColumn: s.SortColumn,
		SortOrder:  s.SortOrder,
		Search:     s.Search,
		Filters:    maps.Clone(s.Filters),
	}
}

// ViewParams are the query parameters of a dataset-view request. A zero
// Page and Limit request the whole, unpaginated row set.
type ViewParams struct {
	Page       int
	Limit      int
	SortColumn string
	SortOrder  SortOrder
	Search     string
	Filters    map[string]string
}

// Paginated reports whether the params select a single page.
func (p ViewParams) Paginated() bool {
	return p.Page > 0 && p.Limit > 0
}

// Offset is the zero-based index of the first row of the page.
func (p ViewParams) Offset() int {
	if !p.Paginated() {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// TotalPages is ceil(total/pageSize).
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
