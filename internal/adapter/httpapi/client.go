package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 20

// Options tunes the client. Zero values select the defaults.
type Options struct {
	Timeout     time.Duration // per attempt, default 30s
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 500ms
	MaxDelay    time.Duration // default 4s
	RateLimit   float64       // requests per second, 0 disables
	Burst       int           // default 1
	Transport   http.RoundTripper
	Logger      *slog.Logger
}

// Client is a port.DatasetSource backed by the dataset REST API.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *Credentials
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger
}

var _ port.DatasetSource = (*Client)(nil)

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, creds *Credentials, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 4 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(opts.Transport),
			Timeout:   opts.Timeout,
		},
		creds:  creds,
		opts:   opts,
		logger: logger,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}
	return c
}

type datasetDTO struct {
	ID          any    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	FilePath    string `json:"file_path"`
}

// ListDatasets calls GET /datasets.
func (c *Client) ListDatasets(ctx context.Context) ([]port.Dataset, error) {
	var dtos []datasetDTO
	if err := c.get(ctx, "/datasets", nil, &dtos); err != nil {
		return nil, err
	}

	datasets := make([]port.Dataset, 0, len(dtos))
	for _, d := range dtos {
		id := domain.ValueOf(d.ID)
		if id.IsNull() {
			continue
		}
		name := d.Name
		if name == "" {
			name = d.FilePath
		}
		datasets = append(datasets, port.Dataset{
			ID:          id.Text(""),
			Name:        name,
			Description: d.Description,
		})
	}
	return datasets, nil
}

// View calls GET /datasets/{id}/view. For unpaginated params the endpoint
// is first called without paging parameters; if the API still answers with
// fewer rows than its total, the remaining pages are fetched with the page
// size the API chose and concatenated.
func (c *Client) View(ctx context.Context, datasetID string, params domain.ViewParams) (*port.ViewPage, error) {
	path := "/datasets/" + url.PathEscape(datasetID) + "/view"

	q, err := viewQuery(params)
	if err != nil {
		return nil, err
	}
	var page port.ViewPage
	if err := c.get(ctx, path, q, &page); err != nil {
		return nil, err
	}
	normalize(&page)
	if params.Paginated() || len(page.Rows) >= page.Total || len(page.Rows) == 0 {
		return &page, nil
	}

	limit := len(page.Rows)
	for n := 2; len(page.Rows) < page.Total; n++ {
		params.Page, params.Limit = n, limit
		q, err := viewQuery(params)
		if err != nil {
			return nil, err
		}
		var next port.ViewPage
		if err := c.get(ctx, path, q, &next); err != nil {
			return nil, fmt.Errorf("fetching page %d of %s: %w", n, datasetID, err)
		}
		if len(next.Rows) == 0 {
			break
		}
		page.Rows = append(page.Rows, next.Rows...)
	}
	return &page, nil
}

func normalize(page *port.ViewPage) {
	if page.Rows == nil {
		page.Rows = []domain.Row{}
	}
	if page.Columns == nil {
		page.Columns = []domain.Column{}
	}
	for i := range page.Columns {
		if page.Columns[i].SampleValues == nil {
			page.Columns[i].SampleValues = []string{}
		}
	}
}

// viewQuery serializes params into the API's query string. Empty values are
// omitted.
func viewQuery(p domain.ViewParams) (url.Values, error) {
	q := url.Values{}
	if p.Paginated() {
		q.Set("page", strconv.Itoa(p.Page))
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.SortColumn != "" {
		q.Set("sort_column", p.SortColumn)
		order := p.SortOrder
		if order == "" {
			order = domain.SortAsc
		}
		q.Set("sort_order", string(order))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if len(p.Filters) > 0 {
		b, err := json.Marshal(p.Filters)
		if err != nil {
			return nil, fmt.Errorf("encoding filters: %w", err)
		}
		q.Set("filters", string(b))
	}
	return q, nil
}

// get performs a GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BaseDelay
	b.MaxInterval = c.opts.MaxDelay

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		return c.do(ctx, u, attempt)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// do runs one attempt. Errors that retrying cannot fix are wrapped with
// backoff.Permanent.
func (c *Client) do(ctx context.Context, u string, attempt int) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	c.creds.apply(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "dataset api request failed",
			slog.String("http.request.method", req.Method),
			slog.String("url.full", u),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.DebugContext(ctx, "dataset api request",
		slog.String("http.request.method", req.Method),
		slog.String("url.full", u),
		slog.Int("http.response.status_code", resp.StatusCode),
		slog.Int("attempt", attempt),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := newAPIError(resp.StatusCode, body)
	if !apiErr.Temporary() {
		return nil, backoff.Permanent(apiErr)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return nil, errors.Join(apiErr, backoff.RetryAfter(secs))
	}
	return nil, apiErr
}
