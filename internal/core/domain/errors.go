package domain

import "errors"

var (
	ErrFetchFailed      = errors.New("fetch failed")
	ErrNotFound         = errors.New("not found")
	ErrNoDataset        = errors.New("no dataset selected")
	ErrAxesNotSelected  = errors.New("both a categorical and a numeric column must be selected")
	ErrSortNotStaged    = errors.New("no sort column staged")
	ErrInvalidSortOrder = errors.New("sort order must be asc or desc")
	ErrInvalidChartType = errors.New("chart type must be bar, line or pie")
	ErrPageOutOfRange   = errors.New("page out of range")
	ErrNoChart          = errors.New("no chart generated yet")
)
