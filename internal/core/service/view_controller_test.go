package service

import (
	"context"
	"testing"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(src *mockSource, n port.Notifier, a port.FetchAuditor) *ViewController {
	return NewViewController(src, 10, n, a, testLogger(), nil, nil)
}

func TestViewController_SelectDatasetFetchesFirstPage(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: pagedView(35)}
	c := newTestController(src, nil, nil)

	assert.Equal(t, 1, c.TotalPages(), "one page before any fetch")
	assert.Nil(t, c.Current())

	require.NoError(t, c.SelectDataset(context.Background(), "sales"))

	calls := src.viewCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sales", calls[0].datasetID)
	assert.Equal(t, domain.ViewParams{Page: 1, Limit: 10, SortOrder: domain.SortAsc}, calls[0].params)

	table := c.Current()
	require.NotNil(t, table)
	assert.Equal(t, 35, table.Total)
	assert.Equal(t, 4, table.TotalPages)
	assert.Equal(t, 4, c.TotalPages())
	assert.Equal(t, []string{"page"}, table.Numeric)
	assert.Equal(t, []string{"city"}, table.Categorical)
	assert.NotEmpty(t, table.RequestID)
	assert.False(t, c.Loading())
}

func TestViewController_SelectEmptyDataset(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	c := newTestController(src, nil, nil)

	assert.ErrorIs(t, c.SelectDataset(context.Background(), ""), domain.ErrNoDataset)
	assert.Empty(t, src.viewCalls())
}

func TestViewController_OperationsRequireDataset(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	c := newTestController(src, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.SetPage(ctx, 1), domain.ErrNoDataset)
	assert.ErrorIs(t, c.SetSearch(ctx, "x"), domain.ErrNoDataset)
	assert.ErrorIs(t, c.ConfirmSort(ctx, "a", domain.SortAsc), domain.ErrNoDataset)
	assert.ErrorIs(t, c.SetFilter(ctx, "a", "b"), domain.ErrNoDataset)
	assert.ErrorIs(t, c.ClearFilters(ctx), domain.ErrNoDataset)
	assert.ErrorIs(t, c.Refresh(ctx), domain.ErrNoDataset)
	assert.Empty(t, src.viewCalls())
}

func TestViewController_SetPageOutOfRangeIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(25)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	tests := []struct {
		name string
		page int
	}{
		{"zero", 0},
		{"negative", -1},
		{"past last page", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SetPage(ctx, tt.page)
			assert.ErrorIs(t, err, domain.ErrPageOutOfRange)
		})
	}

	assert.Len(t, src.viewCalls(), 1, "no re-fetch for out-of-range pages")
	assert.Equal(t, 1, c.State().Page)
}

func TestViewController_SetPageFetchesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(25)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	require.NoError(t, c.SetPage(ctx, 3))

	calls := src.viewCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 3, calls[1].params.Page)
	assert.Equal(t, 3, c.State().Page)
	assert.Equal(t, domain.Number(3), c.Current().Rows[0]["page"])
}

func TestViewController_NextAndPrevPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(20)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	assert.ErrorIs(t, c.PrevPage(ctx), domain.ErrPageOutOfRange)
	require.NoError(t, c.NextPage(ctx))
	assert.Equal(t, 2, c.State().Page)
	assert.ErrorIs(t, c.NextPage(ctx), domain.ErrPageOutOfRange)
	require.NoError(t, c.PrevPage(ctx))
	assert.Equal(t, 1, c.State().Page)
	assert.Len(t, src.viewCalls(), 3)
}

func TestViewController_SetSearchResetsPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(50)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))
	require.NoError(t, c.SetPage(ctx, 4))

	require.NoError(t, c.SetSearch(ctx, "paris"))

	calls := src.viewCalls()
	last := calls[len(calls)-1].params
	assert.Equal(t, "paris", last.Search)
	assert.Equal(t, 1, last.Page)
	assert.Equal(t, 1, c.State().Page)
}

func TestViewController_StagedSort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(50)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))
	require.NoError(t, c.SetPage(ctx, 2))

	require.NoError(t, c.StageSort("amount", domain.SortDesc))
	assert.Len(t, src.viewCalls(), 2, "staging does not fetch")
	assert.Empty(t, c.State().SortColumn)

	require.NoError(t, c.ApplyStagedSort(ctx))

	calls := src.viewCalls()
	require.Len(t, calls, 3)
	p := calls[2].params
	assert.Equal(t, "amount", p.SortColumn)
	assert.Equal(t, domain.SortDesc, p.SortOrder)
	assert.Equal(t, 2, p.Page, "sort confirmation keeps the page")
}

func TestViewController_ApplyStagedSortWithoutColumn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(5)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	assert.ErrorIs(t, c.ApplyStagedSort(ctx), domain.ErrSortNotStaged)
	assert.Len(t, src.viewCalls(), 1)
}

func TestViewController_InvalidSortOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(5)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	assert.ErrorIs(t, c.StageSort("amount", "sideways"), domain.ErrInvalidSortOrder)
	assert.ErrorIs(t, c.ConfirmSort(ctx, "amount", "sideways"), domain.ErrInvalidSortOrder)
	assert.Len(t, src.viewCalls(), 1)
	assert.Empty(t, c.State().SortColumn)
}

func TestViewController_Filters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(50)}
	c := newTestController(src, nil, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))
	require.NoError(t, c.SetPage(ctx, 3))

	require.NoError(t, c.SetFilter(ctx, "city", "Paris"))
	calls := src.viewCalls()
	assert.Equal(t, map[string]string{"city": "Paris"}, calls[len(calls)-1].params.Filters)
	assert.Equal(t, 1, c.State().Page)

	require.NoError(t, c.SetFilter(ctx, "city", ""))
	calls = src.viewCalls()
	assert.Empty(t, calls[len(calls)-1].params.Filters)

	require.NoError(t, c.SetFilter(ctx, "city", "Lyon"))
	require.NoError(t, c.ClearFilters(ctx))
	calls = src.viewCalls()
	assert.Nil(t, calls[len(calls)-1].params.Filters)
}

func TestViewController_FailureKeepsPreviousTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(30)}
	notifier := &recordingNotifier{}
	c := newTestController(src, notifier, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))
	before := c.Current()

	src.setViewFn(func(context.Context, string, domain.ViewParams) (*port.ViewPage, error) {
		return nil, errBackend
	})
	err := c.SetPage(ctx, 2)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.ErrorIs(t, err, errBackend)
	assert.Same(t, before, c.Current(), "previous table stays visible")
	assert.Equal(t, 2, c.State().Page, "view state is not rolled back")
	assert.Equal(t, []string{MsgDataFailed}, notifier.all())

	src.setViewFn(pagedView(30))
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, domain.Number(2), c.Current().Rows[0]["page"])
}

func TestViewController_DatasetSwitchResetsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(50)}
	c := newTestController(src, nil, nil)

	var switched []string
	c.OnDatasetSwitch(func(id string) { switched = append(switched, id) })

	require.NoError(t, c.SelectDataset(ctx, "sales"))
	require.NoError(t, c.SetPage(ctx, 3))
	require.NoError(t, c.SetSearch(ctx, "x"))
	require.NoError(t, c.ConfirmSort(ctx, "amount", domain.SortDesc))
	require.NoError(t, c.SetFilter(ctx, "city", "Paris"))

	require.NoError(t, c.SelectDataset(ctx, "users"))

	calls := src.viewCalls()
	last := calls[len(calls)-1]
	assert.Equal(t, "users", last.datasetID)
	assert.Equal(t, domain.ViewParams{Page: 1, Limit: 10, SortOrder: domain.SortAsc}, last.params)
	col, order := c.StagedSort()
	assert.Empty(t, col)
	assert.Equal(t, domain.SortAsc, order)
	assert.Equal(t, []string{"sales", "users"}, switched)
}

func TestViewController_FailedSwitchKeepsPreviousTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	serve := pagedView(30)
	src := &mockSource{viewFn: func(ctx context.Context, id string, p domain.ViewParams) (*port.ViewPage, error) {
		if id == "users" {
			return nil, errBackend
		}
		return serve(ctx, id, p)
	}}
	notifier := &recordingNotifier{}
	c := newTestController(src, notifier, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))
	before := c.Current()

	err := c.SelectDataset(ctx, "users")
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Equal(t, "users", c.DatasetID())
	assert.Same(t, before, c.Current(), "stale table of the previous dataset stays visible")
	assert.Equal(t, "sales", c.Current().DatasetID)
	assert.Equal(t, []string{MsgDataFailed}, notifier.all())
}

func TestViewController_SupersededResponseIsDiscarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(50)}
	auditor := &recordingAuditor{}
	c := newTestController(src, nil, auditor)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	started := make(chan struct{})
	release := make(chan struct{})
	serve := pagedView(50)
	src.setViewFn(func(ctx context.Context, id string, p domain.ViewParams) (*port.ViewPage, error) {
		if p.Page == 2 {
			close(started)
			<-release
		}
		return serve(ctx, id, p)
	})

	done := make(chan error, 1)
	go func() { done <- c.SetPage(ctx, 2) }()
	<-started
	assert.True(t, c.Loading())

	require.NoError(t, c.SetPage(ctx, 3))
	require.Equal(t, domain.Number(3), c.Current().Rows[0]["page"])

	close(release)
	require.NoError(t, <-done, "superseded responses are dropped silently")

	table := c.Current()
	assert.Equal(t, domain.Number(3), table.Rows[0]["page"], "page-2 response must not overwrite page 3")
	assert.Equal(t, 3, table.State.Page)
	assert.False(t, c.Loading())

	var discarded int
	for _, e := range auditor.all() {
		if e.Discarded {
			discarded++
			assert.Equal(t, 2, e.Page)
		}
	}
	assert.Equal(t, 1, discarded)
}

func TestViewController_SupersededFailureIsNotNotified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &mockSource{viewFn: pagedView(50)}
	notifier := &recordingNotifier{}
	c := newTestController(src, notifier, nil)
	require.NoError(t, c.SelectDataset(ctx, "sales"))

	started := make(chan struct{})
	release := make(chan struct{})
	serve := pagedView(50)
	src.setViewFn(func(ctx context.Context, id string, p domain.ViewParams) (*port.ViewPage, error) {
		if p.Page == 2 {
			close(started)
			<-release
			return nil, errBackend
		}
		return serve(ctx, id, p)
	})

	done := make(chan error, 1)
	go func() { done <- c.SetPage(ctx, 2) }()
	<-started
	require.NoError(t, c.SetPage(ctx, 3))
	close(release)

	require.NoError(t, <-done)
	assert.Empty(t, notifier.all())
	assert.Equal(t, domain.Number(3), c.Current().Rows[0]["page"])
}
