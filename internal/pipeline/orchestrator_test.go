package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vizquery/vizquery/internal/chartgen"
	"github.com/vizquery/vizquery/internal/executor"
	"github.com/vizquery/vizquery/internal/models"
	"github.com/vizquery/vizquery/internal/pipeline"
	"github.com/vizquery/vizquery/internal/registry"
	"github.com/vizquery/vizquery/internal/source"
	"github.com/vizquery/vizquery/internal/sqlgen"
)

// scriptedCompleter replies with each script entry in turn and records
// the user prompts it saw.
type scriptedCompleter struct {
	script  []string
	prompts []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.prompts = append(s.prompts, user)
	if len(s.prompts) > len(s.script) {
		return "", errors.New("scripted completer exhausted")
	}
	return s.script[len(s.prompts)-1], nil
}

type blockingCompleter struct{}

func (b *blockingCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeSource struct {
	snap        source.SchemaSnapshot
	snapErr     error
	result      source.ExecutionResult
	queryErr    error
	queried     bool
	executedSQL string
}

func (f *fakeSource) ID() string   { return f.snap.DataSourceID }
func (f *fakeSource) Name() string { return f.snap.DataSourceID }
func (f *fakeSource) Kind() string { return "postgres" }
func (f *fakeSource) Snapshot(ctx context.Context, limits source.SnapshotLimits) (source.SchemaSnapshot, error) {
	return f.snap, f.snapErr
}
func (f *fakeSource) Query(ctx context.Context, sql string, rowCap int) (source.ExecutionResult, error) {
	f.queried = true
	f.executedSQL = sql
	return f.result, f.queryErr
}
func (f *fakeSource) Ping(ctx context.Context) error { return nil }
func (f *fakeSource) Close() error                   { return nil }

func newFakeSource() *fakeSource {
	return &fakeSource{
		snap: source.SchemaSnapshot{
			DataSourceID: "warehouse",
			Tables: []source.Table{
				{Name: "sales_data", Columns: []source.Column{
					{Name: "region", Type: "text"},
					{Name: "amount", Type: "double"},
				}},
			},
		},
		result: source.ExecutionResult{
			Columns: []source.ResultColumn{
				{Name: "region", InferredType: "text"},
				{Name: "total", InferredType: "double"},
			},
			Rows: []map[string]any{
				{"region": "EU", "total": 1200.5},
				{"region": "US", "total": 900.0},
			},
			RowCount: 2,
		},
	}
}

func newOrchestrator(t *testing.T, src *fakeSource, completer *scriptedCompleter, budget time.Duration) *pipeline.Orchestrator {
	t.Helper()
	return newOrchestratorWith(t, src, sqlgen.New(completer), chartgen.New(completer), budget)
}

func newOrchestratorWith(t *testing.T, src *fakeSource, gen *sqlgen.Generator, charts *chartgen.Generator, budget time.Duration) *pipeline.Orchestrator {
	t.Helper()
	reg := registry.NewWithOpener(func(ctx context.Context, def registry.Definition) (source.Source, error) {
		return src, nil
	})
	err := reg.Register(context.Background(), registry.Definition{
		ID:   "warehouse",
		Name: "Sales Warehouse",
		Kind: "postgres",
		Exemplars: []registry.Exemplar{
			{Question: "row count", SQL: "SELECT COUNT(*) FROM sales_data"},
		},
	})
	if err != nil {
		t.Fatalf("register fixture source: %v", err)
	}
	return pipeline.New(pipeline.Config{
		Registry:       reg,
		Generator:      gen,
		ChartGenerator: charts,
		Executor:       executor.New(100),
		RequestBudget:  budget,
	})
}

const goodSQL = "SELECT region, SUM(amount) AS total FROM sales_data GROUP BY region"
const goodChart = `{"mark":"bar","encoding":{"x":{"field":"region"},"y":{"field":"total"}}}`

func TestExecuteHappyPath(t *testing.T) {
	src := newFakeSource()
	completer := &scriptedCompleter{script: []string{goodSQL, goodChart}}
	orch := newOrchestrator(t, src, completer, time.Minute)

	res, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "total sales by region",
		DataSourceID:         "warehouse",
	})
	if failure != nil {
		t.Fatalf("Execute failed: %+v", failure)
	}
	if res.QueryID == "" {
		t.Error("QueryID missing")
	}
	if res.SQL != goodSQL {
		t.Errorf("SQL = %q", res.SQL)
	}
	if src.executedSQL != goodSQL {
		t.Errorf("executed sql = %q", src.executedSQL)
	}
	if len(res.Data) != 2 {
		t.Errorf("rows = %d", len(res.Data))
	}
	if !strings.Contains(res.Summary, "2 rows") {
		t.Errorf("Summary = %q", res.Summary)
	}
	if len(completer.prompts) != 2 {
		t.Fatalf("completion calls = %d, want 2", len(completer.prompts))
	}

	var spec map[string]any
	if err := json.Unmarshal(res.ChartSpec, &spec); err != nil {
		t.Fatalf("chart spec not valid JSON: %v", err)
	}
	data, _ := spec["data"].(map[string]any)
	if data["name"] != chartgen.DataName {
		t.Errorf("chart data binding = %v", spec["data"])
	}

	// The generation prompt carries schema and exemplars, never rows.
	genPrompt := completer.prompts[0]
	for _, want := range []string{"sales_data", "SELECT COUNT(*) FROM sales_data"} {
		if !strings.Contains(genPrompt, want) {
			t.Errorf("generation prompt missing %q", want)
		}
	}
	// The chart prompt carries column metadata, never row values.
	chartPrompt := completer.prompts[1]
	if !strings.Contains(chartPrompt, "region") {
		t.Error("chart prompt missing column name")
	}
	for _, leaked := range []string{"EU", "1200.5"} {
		if strings.Contains(chartPrompt, leaked) {
			t.Errorf("chart prompt leaks row value %q", leaked)
		}
	}
}

func TestExecuteRetriesOnceAfterRejection(t *testing.T) {
	src := newFakeSource()
	completer := &scriptedCompleter{script: []string{
		"SELECT secret FROM credentials",
		goodSQL,
		goodChart,
	}}
	orch := newOrchestrator(t, src, completer, time.Minute)

	res, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "total sales by region",
		DataSourceID:         "warehouse",
	})
	if failure != nil {
		t.Fatalf("Execute failed: %+v", failure)
	}
	if res.SQL != goodSQL {
		t.Errorf("SQL = %q", res.SQL)
	}
	if len(completer.prompts) != 3 {
		t.Fatalf("completion calls = %d, want 3", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[1], "unknown_table") {
		t.Error("retry prompt should carry the rejection reason")
	}
}

func TestExecuteRejectsUnsafeStatementAfterRetry(t *testing.T) {
	src := newFakeSource()
	completer := &scriptedCompleter{script: []string{
		"DELETE FROM sales_data",
		"SELECT 1; DROP TABLE sales_data;",
	}}
	orch := newOrchestrator(t, src, completer, time.Minute)

	res, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "wipe the data",
		DataSourceID:         "warehouse",
	})
	if res != nil {
		t.Fatal("expected failure")
	}
	if failure.Kind != pipeline.KindUnsafeStatement {
		t.Errorf("Kind = %s", failure.Kind)
	}
	if src.queried {
		t.Error("rejected statement must never reach the data source")
	}
	if len(completer.prompts) != 2 {
		t.Errorf("completion calls = %d, want 2 (no chart generation)", len(completer.prompts))
	}
	if failure.QueryID == "" {
		t.Error("failure should carry the query id")
	}
}

func TestExecuteUnknownDataSource(t *testing.T) {
	src := newFakeSource()
	completer := &scriptedCompleter{script: []string{goodSQL, goodChart}}
	orch := newOrchestrator(t, src, completer, time.Minute)

	_, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "anything",
		DataSourceID:         "missing",
	})
	if failure == nil || failure.Kind != pipeline.KindDataSourceNotFound {
		t.Fatalf("failure = %+v, want DataSourceNotFound", failure)
	}
	if len(completer.prompts) != 0 {
		t.Error("no completion call should happen for an unknown data source")
	}
}

func TestExecuteMalformedRequest(t *testing.T) {
	src := newFakeSource()
	completer := &scriptedCompleter{}
	orch := newOrchestrator(t, src, completer, time.Minute)

	cases := []models.QueryRequest{
		{DataSourceID: "warehouse"},
		{NaturalLanguageQuery: "q"},
		{NaturalLanguageQuery: strings.Repeat("x", 3000), DataSourceID: "warehouse"},
	}
	for _, req := range cases {
		_, failure := orch.Execute(context.Background(), req)
		if failure == nil || failure.Kind != pipeline.KindMalformedRequest {
			t.Errorf("req %+v: failure = %+v, want MalformedRequest", req, failure)
		}
	}
}

func TestExecuteSnapshotFailure(t *testing.T) {
	src := newFakeSource()
	src.snapErr = errors.New("connection refused")
	completer := &scriptedCompleter{}
	orch := newOrchestrator(t, src, completer, time.Minute)

	_, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "q",
		DataSourceID:         "warehouse",
	})
	if failure == nil || failure.Kind != pipeline.KindDataSourceUnavailable {
		t.Fatalf("failure = %+v, want DataSourceUnavailable", failure)
	}
}

func TestExecuteExecutionFailure(t *testing.T) {
	src := newFakeSource()
	src.queryErr = errors.New("permission denied for relation sales_data")
	completer := &scriptedCompleter{script: []string{goodSQL}}
	orch := newOrchestrator(t, src, completer, time.Minute)

	_, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "q",
		DataSourceID:         "warehouse",
	})
	if failure == nil || failure.Kind != pipeline.KindExecutionError {
		t.Fatalf("failure = %+v, want ExecutionError", failure)
	}
}

func TestExecuteTimeout(t *testing.T) {
	src := newFakeSource()
	orch := newOrchestratorWith(t, src,
		sqlgen.New(&blockingCompleter{}), chartgen.New(&blockingCompleter{}),
		50*time.Millisecond)

	_, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "q",
		DataSourceID:         "warehouse",
	})
	if failure == nil || failure.Kind != pipeline.KindTimeout {
		t.Fatalf("failure = %+v, want Timeout", failure)
	}
}

func TestExecutePreviousSpecFlowsIntoPrompts(t *testing.T) {
	src := newFakeSource()
	completer := &scriptedCompleter{script: []string{goodSQL, goodChart}}
	orch := newOrchestrator(t, src, completer, time.Minute)

	prev := json.RawMessage(`{"mark":"bar","title":"previous"}`)
	_, failure := orch.Execute(context.Background(), models.QueryRequest{
		NaturalLanguageQuery: "make it a line chart",
		DataSourceID:         "warehouse",
		ConversationContext:  &models.ConversationContext{PreviousVegaLiteSpec: prev},
	})
	if failure != nil {
		t.Fatalf("Execute failed: %+v", failure)
	}
	if !strings.Contains(completer.prompts[0], `"title":"previous"`) {
		t.Error("generation prompt should carry the previous spec as context")
	}
	if !strings.Contains(completer.prompts[1], `"title":"previous"`) {
		t.Error("chart prompt should carry the previous spec for editing")
	}
}

func TestKindHTTPStatus(t *testing.T) {
	cases := map[pipeline.Kind]int{
		pipeline.KindMalformedRequest:      400,
		pipeline.KindDataSourceNotFound:    400,
		pipeline.KindUnsafeStatement:       400,
		pipeline.KindDataSourceUnavailable: 503,
		pipeline.KindTimeout:               504,
		pipeline.KindGenerationFailed:      500,
		pipeline.KindExecutionError:        500,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}
}
