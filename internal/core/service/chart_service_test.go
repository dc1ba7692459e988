package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSelection string

func (s fixedSelection) DatasetID() string { return string(s) }

type fakeRenderer struct {
	rendered []domain.ChartSpec
}

func (r *fakeRenderer) Render(w io.Writer, spec domain.ChartSpec, format port.ImageFormat) error {
	r.rendered = append(r.rendered, spec)
	_, err := io.WriteString(w, string(format))
	return err
}

func salesRows(context.Context, string, domain.ViewParams) (*port.ViewPage, error) {
	return &port.ViewPage{
		Rows: []domain.Row{
			{"city": domain.String("Paris"), "amount": domain.Number(10)},
			{"city": domain.String("Lyon"), "amount": domain.String("20")},
			{"city": domain.String("Paris"), "amount": domain.Number(5)},
			{"city": domain.Null(), "amount": domain.String("n/a")},
		},
		Total: 4,
	}, nil
}

func newTestChartService(src *mockSource, sel DatasetSelection, n port.Notifier) *ChartService {
	return NewChartService(src, sel, &fakeRenderer{}, "", n, nil, testLogger(), nil, nil)
}

func TestChartService_GenerateRequiresAxes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		category, value string
	}{
		{"none", "", ""},
		{"category only", "city", ""},
		{"value only", "", "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &mockSource{viewFn: salesRows}
			svc := newTestChartService(src, fixedSelection("sales"), nil)
			svc.StageAxes(tt.category, tt.value)

			_, err := svc.Generate(context.Background())
			assert.ErrorIs(t, err, domain.ErrAxesNotSelected)
			assert.Empty(t, src.viewCalls())
		})
	}
}

func TestChartService_GenerateRequiresDataset(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: salesRows}
	svc := newTestChartService(src, fixedSelection(""), nil)
	svc.StageAxes("city", "amount")

	_, err := svc.Generate(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoDataset)
}

func TestChartService_Generate(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: salesRows}
	svc := newTestChartService(src, fixedSelection("sales"), nil)
	require.NoError(t, svc.SetChartType("pie"))
	svc.StageAxes("city", "amount")

	spec, err := svc.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ChartPie, spec.Type)
	assert.Equal(t, domain.Series{
		{Category: "Paris", Value: 15},
		{Category: "Lyon", Value: 20},
		{Category: "undefined", Value: 0},
	}, spec.Series)
	assert.Equal(t, 4, spec.Rows)
	assert.Equal(t, domain.CardinalityEnumLike, spec.Grouping)
	assert.InDelta(t, 21.0, spec.Axis.DomainMax, 1e-9)
	assert.Len(t, spec.Axis.Ticks, 22)
	assert.Same(t, spec, svc.Last())

	calls := src.viewCalls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].params.Paginated(), "chart data is fetched unpaginated")
}

func TestChartService_CachesFullRowsPerDataset(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: salesRows}
	svc := newTestChartService(src, fixedSelection("sales"), nil)
	ctx := context.Background()

	svc.StageAxes("city", "amount")
	_, err := svc.Generate(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.SetChartType("line"))
	_, err = svc.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, src.viewCalls(), 1)

	svc.Invalidate("sales")
	assert.Nil(t, svc.Last())
	_, cat, val := svc.Config()
	assert.Empty(t, cat)
	assert.Empty(t, val)

	svc.StageAxes("city", "amount")
	_, err = svc.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, src.viewCalls(), 2)
}

type switchableSelection struct{ id string }

func (s *switchableSelection) DatasetID() string { return s.id }

func TestChartService_FailureKeepsLastChart(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: func(ctx context.Context, id string, p domain.ViewParams) (*port.ViewPage, error) {
		if id == "broken" {
			return nil, errBackend
		}
		return salesRows(ctx, id, p)
	}}
	notifier := &recordingNotifier{}
	sel := &switchableSelection{id: "sales"}
	svc := newTestChartService(src, sel, notifier)
	ctx := context.Background()

	svc.StageAxes("city", "amount")
	first, err := svc.Generate(ctx)
	require.NoError(t, err)

	sel.id = "broken"
	_, err = svc.Generate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, []string{MsgChartFailed}, notifier.all())
	assert.Same(t, first, svc.Last(), "previous chart retained")

	sel.id = "sales"
	svc.StageAxes("amount", "city")
	_, err = svc.Generate(ctx)
	require.NoError(t, err, "sales rows are cached")
	assert.Len(t, src.viewCalls(), 2)
}

func TestChartService_ResetDropsEverything(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: salesRows}
	svc := newTestChartService(src, fixedSelection("sales"), nil)
	ctx := context.Background()

	svc.StageAxes("city", "amount")
	_, err := svc.Generate(ctx)
	require.NoError(t, err)

	svc.Reset()
	assert.Nil(t, svc.Last())
	_, err = svc.Generate(ctx)
	assert.ErrorIs(t, err, domain.ErrAxesNotSelected)

	svc.StageAxes("city", "amount")
	_, err = svc.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, src.viewCalls(), 2)
}

func TestChartService_SetChartTypeRejectsUnknown(t *testing.T) {
	t.Parallel()
	svc := newTestChartService(&mockSource{}, fixedSelection("sales"), nil)

	assert.ErrorIs(t, svc.SetChartType("scatter"), domain.ErrInvalidChartType)
	ct, _, _ := svc.Config()
	assert.Equal(t, domain.ChartBar, ct)
}

func TestChartService_Render(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: salesRows}
	renderer := &fakeRenderer{}
	svc := NewChartService(src, fixedSelection("sales"), renderer, "", nil, nil, testLogger(), nil, nil)

	var buf bytes.Buffer
	assert.ErrorIs(t, svc.Render(&buf, port.FormatPNG), domain.ErrNoChart)

	svc.StageAxes("city", "amount")
	_, err := svc.Generate(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.Render(&buf, port.FormatSVG))
	assert.Equal(t, "svg", buf.String())
	require.Len(t, renderer.rendered, 1)
	assert.Equal(t, "city", renderer.rendered[0].CategoryColumn)
}

func TestChartService_NullLabel(t *testing.T) {
	t.Parallel()
	src := &mockSource{viewFn: salesRows}
	svc := NewChartService(src, fixedSelection("sales"), nil, "(none)", nil, nil, testLogger(), nil, nil)
	svc.StageAxes("city", "amount")

	spec, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "(none)", spec.Series[2].Category)
}

// blockingRows serves salesRows but holds every fetch of blocked until
// release is closed. started is closed by the first one.
func blockingRows(blocked string, started, release chan struct{}) func(context.Context, string, domain.ViewParams) (*port.ViewPage, error) {
	var once sync.Once
	return func(ctx context.Context, id string, p domain.ViewParams) (*port.ViewPage, error) {
		if id == blocked {
			once.Do(func() { close(started) })
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		return salesRows(ctx, id, p)
	}
}

func TestChartService_DatasetSwitchDiscardsInFlightChart(t *testing.T) {
	t.Parallel()
	started, release := make(chan struct{}), make(chan struct{})
	src := &mockSource{viewFn: blockingRows("A", started, release)}
	notifier := &recordingNotifier{}
	sel := &switchableSelection{id: "A"}
	svc := newTestChartService(src, sel, notifier)
	svc.StageAxes("city", "amount")

	type result struct {
		spec *domain.ChartSpec
		err  error
	}
	done := make(chan result, 1)
	go func() {
		spec, err := svc.Generate(context.Background())
		done <- result{spec, err}
	}()
	<-started

	sel.id = "B"
	svc.Invalidate("A")
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.Nil(t, res.spec)
	assert.Nil(t, svc.Last(), "chart of A must not appear while B is selected")
	assert.Empty(t, notifier.all())

	sel.id = "A"
	svc.StageAxes("city", "amount")
	_, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, src.viewCalls(), 2, "rows fetched before the invalidation are not cached")
}

func TestChartService_LatestGenerateWins(t *testing.T) {
	t.Parallel()
	started, release := make(chan struct{}), make(chan struct{})
	src := &mockSource{viewFn: blockingRows("A", started, release)}
	sel := &switchableSelection{id: "A"}
	svc := newTestChartService(src, sel, nil)
	svc.StageAxes("city", "amount")

	done := make(chan *domain.ChartSpec, 1)
	go func() {
		spec, _ := svc.Generate(context.Background())
		done <- spec
	}()
	<-started

	sel.id = "B"
	latest, err := svc.Generate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "B", latest.DatasetID)

	close(release)
	assert.Nil(t, <-done, "the earlier Generate is superseded")
	assert.Same(t, latest, svc.Last())
}

func TestChartService_StagingAxesSupersedesInFlightChart(t *testing.T) {
	t.Parallel()
	started, release := make(chan struct{}), make(chan struct{})
	src := &mockSource{viewFn: blockingRows("sales", started, release)}
	svc := newTestChartService(src, fixedSelection("sales"), nil)
	svc.StageAxes("city", "amount")

	done := make(chan *domain.ChartSpec, 1)
	go func() {
		spec, _ := svc.Generate(context.Background())
		done <- spec
	}()
	<-started
	svc.StageAxes("amount", "city")
	close(release)

	assert.Nil(t, <-done)
	assert.Nil(t, svc.Last())
}

func TestChartService_SharedFetchSurvivesCallerCancel(t *testing.T) {
	t.Parallel()
	started, release := make(chan struct{}), make(chan struct{})
	src := &mockSource{viewFn: blockingRows("sales", started, release)}
	notifier := &recordingNotifier{}
	svc := newTestChartService(src, fixedSelection("sales"), notifier)
	svc.StageAxes("city", "amount")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx)
		done <- err
	}()
	<-started
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, notifier.all(), "a caller that went away is not notified")

	second := make(chan error, 1)
	var spec *domain.ChartSpec
	go func() {
		var err error
		spec, err = svc.Generate(context.Background())
		second <- err
	}()
	close(release)

	require.NoError(t, <-second)
	require.NotNil(t, spec)
	assert.Equal(t, 35.0, spec.Series.Total())
	assert.Len(t, src.viewCalls(), 1, "the fetch is shared or cached, never restarted")
	assert.Empty(t, notifier.all())
}
