package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
	"github.com/guillermoBallester/tabula/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "tabula"

// Tool descriptions
const (
	descListDatasets = "List the datasets available for exploration with their id and name. " +
		"If no dataset is selected yet, the first one is selected and its first page is loaded. " +
		"Returns the listing and the selected dataset."

	descSelectDataset = "Select a dataset by id. Paging, sort, search and filters are reset " +
		"and the first page of rows is returned together with the columns classified as numeric or categorical. " +
		"Any staged chart axes are cleared because they refer to the previous dataset's columns."

	descViewPage = "Return the current page of the selected dataset: rows, columns with their kind " +
		"(numeric or categorical, inferred from sample values), total matching rows, total pages and the " +
		"view state (page, sort, search, filters) the page answers. Set refresh to re-fetch it."

	descSetPage = "Move to another page of the table. Pass page for an absolute page number " +
		"(1-based, at most total_pages) or direction next/prev. Out-of-range pages are rejected without fetching."

	descSearch = "Apply a free-text search across all columns (case-insensitive substring match) " +
		"and return to the first page. An empty term clears the search."

	descStageSort = "Stage a sort column and order without applying it. " +
		"Call confirm_sort to apply the staged sort."

	descConfirmSort = "Apply a sort. With column set, that column and order are applied directly; " +
		"without it, the sort staged by stage_sort is applied. The current page is kept."

	descSetFilter = "Restrict the table to rows whose column equals value exactly (compared as text) " +
		"and return to the first page. An empty value removes that column's filter."

	descClearFilters = "Remove every column filter and return to the first page."

	descClassifyColumns = "Return the columns of the current table with their kind. " +
		"Numeric columns can be aggregated as chart values; categorical columns can group a chart."

	descSetChart = "Configure the chart: type (bar, line or pie), category_column (groups the rows) " +
		"and value_column (summed per category). Omitted fields keep their current value."

	descGenerateChart = "Aggregate the value column by the category column over every row of the selected " +
		"dataset (not just the current page). Categories appear in first-seen order; empty categories fall into " +
		"a configured null bucket; non-numeric values count as 0. Returns the series, the y-axis scale and " +
		"a grouping hint that warns when nearly every row has its own category."

	descRenderChart = "Render the last generated chart as a PNG image (default) or SVG text."
)

// Services are the application services the tools drive.
type Services struct {
	Datasets *service.DatasetService
	View     *service.ViewController
	Chart    *service.ChartService
}

func RegisterTools(s *server.MCPServer, svc Services) {
	s.AddTool(
		mcp.NewTool("list_datasets",
			mcp.WithDescription(descListDatasets),
		),
		listDatasetsHandler(svc.Datasets),
	)

	s.AddTool(
		mcp.NewTool("select_dataset",
			mcp.WithDescription(descSelectDataset),
			mcp.WithString("dataset_id",
				mcp.Required(),
				mcp.Description("Id of the dataset, as returned by list_datasets"),
			),
		),
		selectDatasetHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("view_page",
			mcp.WithDescription(descViewPage),
			mcp.WithBoolean("refresh",
				mcp.Description("Re-fetch the current page. Defaults to false."),
			),
		),
		viewPageHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("set_page",
			mcp.WithDescription(descSetPage),
			mcp.WithNumber("page",
				mcp.Description("1-based page number"),
			),
			mcp.WithString("direction",
				mcp.Description("next or prev, used when page is omitted"),
				mcp.Enum("next", "prev"),
			),
		),
		setPageHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription(descSearch),
			mcp.WithString("term",
				mcp.Description("Search term; empty clears the search"),
			),
		),
		searchHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("stage_sort",
			mcp.WithDescription(descStageSort),
			mcp.WithString("column",
				mcp.Required(),
				mcp.Description("Column to sort by"),
			),
			mcp.WithString("order",
				mcp.Description("asc or desc. Defaults to asc."),
				mcp.Enum("asc", "desc"),
			),
		),
		stageSortHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("confirm_sort",
			mcp.WithDescription(descConfirmSort),
			mcp.WithString("column",
				mcp.Description("Column to sort by (optional, uses the staged sort if omitted)"),
			),
			mcp.WithString("order",
				mcp.Description("asc or desc. Defaults to asc."),
				mcp.Enum("asc", "desc"),
			),
		),
		confirmSortHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("set_filter",
			mcp.WithDescription(descSetFilter),
			mcp.WithString("column",
				mcp.Required(),
				mcp.Description("Column to filter"),
			),
			mcp.WithString("value",
				mcp.Description("Exact value to keep; empty removes the filter"),
			),
		),
		setFilterHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("clear_filters",
			mcp.WithDescription(descClearFilters),
		),
		clearFiltersHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("classify_columns",
			mcp.WithDescription(descClassifyColumns),
		),
		classifyColumnsHandler(svc.View),
	)

	s.AddTool(
		mcp.NewTool("set_chart",
			mcp.WithDescription(descSetChart),
			mcp.WithString("type",
				mcp.Description("Chart type"),
				mcp.Enum("bar", "line", "pie"),
			),
			mcp.WithString("category_column",
				mcp.Description("Column whose values become the chart categories"),
			),
			mcp.WithString("value_column",
				mcp.Description("Numeric column summed per category"),
			),
		),
		setChartHandler(svc.View, svc.Chart),
	)

	s.AddTool(
		mcp.NewTool("generate_chart",
			mcp.WithDescription(descGenerateChart),
		),
		generateChartHandler(svc.Chart),
	)

	s.AddTool(
		mcp.NewTool("render_chart",
			mcp.WithDescription(descRenderChart),
			mcp.WithString("format",
				mcp.Description("png or svg. Defaults to png."),
				mcp.Enum("png", "svg"),
			),
		),
		renderChartHandler(svc.Chart),
	)
}

type datasetsResult struct {
	Datasets []port.Dataset `json:"datasets"`
	Selected *port.Dataset  `json:"selected"`
}

// viewResult is the answer of every tool that changes the table view.
type viewResult struct {
	DatasetID  string           `json:"dataset_id"`
	State      domain.ViewState `json:"state"`
	TotalPages int              `json:"total_pages"`
	Table      *service.Table   `json:"table"`
}

type columnsResult struct {
	Columns     []domain.ClassifiedColumn `json:"columns"`
	Numeric     []string                  `json:"numeric_columns"`
	Categorical []string                  `json:"categorical_columns"`
}

type chartConfigResult struct {
	Type           domain.ChartType `json:"type"`
	CategoryColumn string           `json:"category_column"`
	ValueColumn    string           `json:"value_column"`
}

type chartResult struct {
	*domain.ChartSpec
	Warning string `json:"warning,omitempty"`
}

func listDatasetsHandler(datasets *service.DatasetService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, selected, err := datasets.Open(ctx)
		if err != nil && list == nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list datasets: %v", err)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load dataset %s: %v", selected.ID, err)), nil
		}
		return jsonResult(datasetsResult{Datasets: list, Selected: selected})
	}
}

func selectDatasetHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["dataset_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("dataset_id is required"), nil
		}

		if err := view.SelectDataset(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to select dataset: %v", err)), nil
		}
		return viewResultOf(view)
	}
}

func viewPageHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if view.DatasetID() == "" {
			return noDatasetResult(), nil
		}

		refresh, _ := request.GetArguments()["refresh"].(bool)
		if refresh || currentTable(view) == nil {
			if err := view.Refresh(ctx); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to load page: %v", err)), nil
			}
		}
		return viewResultOf(view)
	}
}

func setPageHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		var err error
		if raw, present := args["page"]; present && raw != nil {
			page, ok := intArg(raw)
			if !ok {
				return mcp.NewToolResultError("page must be an integer"), nil
			}
			err = view.SetPage(ctx, page)
		} else {
			switch direction, _ := args["direction"].(string); direction {
			case "next":
				err = view.NextPage(ctx)
			case "prev":
				err = view.PrevPage(ctx)
			default:
				return mcp.NewToolResultError("page or direction (next, prev) is required"), nil
			}
		}
		if err != nil {
			return viewError("failed to change page", err), nil
		}
		return viewResultOf(view)
	}
}

func searchHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		term, _ := request.GetArguments()["term"].(string)

		if err := view.SetSearch(ctx, term); err != nil {
			return viewError("search failed", err), nil
		}
		return viewResultOf(view)
	}
}

func stageSortHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		column, ok := request.GetArguments()["column"].(string)
		if !ok || column == "" {
			return mcp.NewToolResultError("column is required"), nil
		}
		order, _ := request.GetArguments()["order"].(string)

		if err := view.StageSort(column, domain.SortOrder(order)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to stage sort: %v", err)), nil
		}

		staged, stagedOrder := view.StagedSort()
		return jsonResult(map[string]string{
			"staged_column": staged,
			"staged_order":  string(stagedOrder),
		})
	}
}

func confirmSortHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		column, _ := request.GetArguments()["column"].(string)
		order, _ := request.GetArguments()["order"].(string)

		var err error
		if column == "" {
			err = view.ApplyStagedSort(ctx)
		} else {
			err = view.ConfirmSort(ctx, column, domain.SortOrder(order))
		}
		if err != nil {
			return viewError("failed to apply sort", err), nil
		}
		return viewResultOf(view)
	}
}

func setFilterHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		column, ok := request.GetArguments()["column"].(string)
		if !ok || column == "" {
			return mcp.NewToolResultError("column is required"), nil
		}
		value, _ := request.GetArguments()["value"].(string)

		if err := view.SetFilter(ctx, column, value); err != nil {
			return viewError("failed to apply filter", err), nil
		}
		return viewResultOf(view)
	}
}

func clearFiltersHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := view.ClearFilters(ctx); err != nil {
			return viewError("failed to clear filters", err), nil
		}
		return viewResultOf(view)
	}
}

func classifyColumnsHandler(view *service.ViewController) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table := currentTable(view)
		if table == nil {
			if view.DatasetID() == "" {
				return noDatasetResult(), nil
			}
			return mcp.NewToolResultError("no page loaded yet; call view_page"), nil
		}
		return jsonResult(columnsResult{
			Columns:     table.Columns,
			Numeric:     table.Numeric,
			Categorical: table.Categorical,
		})
	}
}

func setChartHandler(view *service.ViewController, chart *service.ChartService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		if t, ok := args["type"].(string); ok && t != "" {
			if err := chart.SetChartType(t); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid chart type: %v", err)), nil
			}
		}

		_, category, value := chart.Config()
		newCategory, hasCategory := args["category_column"].(string)
		newValue, hasValue := args["value_column"].(string)
		if hasCategory {
			category = newCategory
		}
		if hasValue {
			value = newValue
		}
		if hasCategory || hasValue {
			if table := currentTable(view); table != nil {
				for _, col := range []string{category, value} {
					if col != "" && !hasColumn(table.Columns, col) {
						return mcp.NewToolResultError(fmt.Sprintf("unknown column %q", col)), nil
					}
				}
			}
			chart.StageAxes(category, value)
		}

		chartType, category, value := chart.Config()
		return jsonResult(chartConfigResult{Type: chartType, CategoryColumn: category, ValueColumn: value})
	}
}

func generateChartHandler(chart *service.ChartService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spec, err := chart.Generate(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrAxesNotSelected) {
				return mcp.NewToolResultError("select both category_column and value_column with set_chart first"), nil
			}
			return viewError("chart generation failed", err), nil
		}
		if spec == nil {
			return mcp.NewToolResultError("chart settings or dataset changed while generating; call generate_chart again"), nil
		}

		result := chartResult{ChartSpec: spec}
		if !spec.Grouping.Aggregates() {
			result.Warning = fmt.Sprintf("%s is %s across %d rows; the chart shows individual rows rather than groups",
				spec.CategoryColumn, spec.Grouping, spec.Rows)
		}
		return jsonResult(result)
	}
}

func renderChartHandler(chart *service.ChartService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		format := port.FormatPNG
		if f, _ := request.GetArguments()["format"].(string); f != "" {
			format = port.ImageFormat(f)
		}
		if format != port.FormatPNG && format != port.FormatSVG {
			return mcp.NewToolResultError(fmt.Sprintf("unsupported format %q (allowed: png, svg)", format)), nil
		}

		var buf bytes.Buffer
		if err := chart.Render(&buf, format); err != nil {
			if errors.Is(err, domain.ErrNoChart) {
				return mcp.NewToolResultError("no chart generated yet; call generate_chart first"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to render chart: %v", err)), nil
		}

		if format == port.FormatSVG {
			return mcp.NewToolResultText(buf.String()), nil
		}
		spec := chart.Last()
		caption := fmt.Sprintf("%s chart of %s by %s", spec.Type, spec.ValueColumn, spec.CategoryColumn)
		return mcp.NewToolResultImage(caption, base64.StdEncoding.EncodeToString(buf.Bytes()), "image/png"), nil
	}
}

// currentTable returns the visible table if it belongs to the selected
// dataset.
func currentTable(view *service.ViewController) *service.Table {
	table := view.Current()
	if table == nil || table.DatasetID != view.DatasetID() {
		return nil
	}
	return table
}

func viewResultOf(view *service.ViewController) (*mcp.CallToolResult, error) {
	return jsonResult(viewResult{
		DatasetID:  view.DatasetID(),
		State:      view.State(),
		TotalPages: view.TotalPages(),
		Table:      view.Current(),
	})
}

func viewError(prefix string, err error) *mcp.CallToolResult {
	if errors.Is(err, domain.ErrNoDataset) {
		return noDatasetResult()
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func noDatasetResult() *mcp.CallToolResult {
	return mcp.NewToolResultError("no dataset selected; call list_datasets or select_dataset first")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// intArg accepts JSON numbers holding an integer.
func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func hasColumn(cols []domain.ClassifiedColumn, name string) bool {
	return slices.ContainsFunc(cols, func(c domain.ClassifiedColumn) bool { return c.Name == name })
}
