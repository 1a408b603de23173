// Package pipeline sequences schema resolution, SQL generation, the
// safety gate, execution, and chart generation for one request, and is
// the single boundary where internal errors become typed failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/vizquery/vizquery/internal/chartgen"
	"github.com/vizquery/vizquery/internal/executor"
	"github.com/vizquery/vizquery/internal/models"
	"github.com/vizquery/vizquery/internal/registry"
	"github.com/vizquery/vizquery/internal/source"
	"github.com/vizquery/vizquery/internal/sqlgen"
	"github.com/vizquery/vizquery/internal/sqlguard"
)

// State names one position in the per-request state machine. States are
// logged, never stored: nothing survives past response emission.
type State string

const (
	StateReceived       State = "received"
	StateSchemaResolved State = "schema_resolved"
	StateSQLGenerated   State = "sql_generated"
	StateSQLValidated   State = "sql_validated"
	StateExecuted       State = "executed"
	StateChartGenerated State = "chart_generated"
	StateResponded      State = "responded"
)

// Result is the assembled success payload for one request.
type Result struct {
	QueryID   string
	Summary   string
	SQL       string
	ChartSpec []byte
	Data      []map[string]any
	Truncated bool
}

type Orchestrator struct {
	registry  *registry.Registry
	generator *sqlgen.Generator
	charts    *chartgen.Generator
	executor  *executor.Executor
	limits    source.SnapshotLimits
	budget    time.Duration
	inflight  *semaphore.Weighted
}

// Config wires the orchestrator's collaborators and budgets.
type Config struct {
	Registry       *registry.Registry
	Generator      *sqlgen.Generator
	ChartGenerator *chartgen.Generator
	Executor       *executor.Executor
	SnapshotLimits source.SnapshotLimits
	RequestBudget  time.Duration
	MaxConcurrent  int64
}

func New(cfg Config) *Orchestrator {
	if cfg.RequestBudget <= 0 {
		cfg.RequestBudget = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	return &Orchestrator{
		registry:  cfg.Registry,
		generator: cfg.Generator,
		charts:    cfg.ChartGenerator,
		executor:  cfg.Executor,
		limits:    cfg.SnapshotLimits,
		budget:    cfg.RequestBudget,
		inflight:  semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Execute runs the full pipeline for one request. Exactly one of
// (*Result, *Failure) is non-nil. Every resource acquired here is
// released on all exit paths; nothing is shared between requests.
func (o *Orchestrator) Execute(ctx context.Context, req models.QueryRequest) (*Result, *Failure) {
	queryID := uuid.NewString()
	start := time.Now()
	state := StateReceived

	logState := func(s State) {
		state = s
		log.Debug().Str("query_id", queryID).Str("state", string(s)).Msg("pipeline transition")
	}

	fail := func(kind Kind, message, details string) (*Result, *Failure) {
		log.Warn().
			Str("query_id", queryID).
			Str("state", string(state)).
			Str("kind", string(kind)).
			Str("details", details).
			Msg("pipeline failed")
		return nil, NewFailure(queryID, kind, message, details)
	}

	if err := req.Validate(); err != nil {
		return fail(KindMalformedRequest, "invalid request", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	if err := o.inflight.Acquire(ctx, 1); err != nil {
		return fail(KindTimeout, "server is at capacity", "no pipeline slot became available within the request budget")
	}
	defer o.inflight.Release(1)

	// Resolve data source and take a fresh schema snapshot.
	src, def, err := o.registry.Resolve(req.DataSourceID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fail(KindDataSourceNotFound, fmt.Sprintf("unknown data source %q", req.DataSourceID), "the id is not registered")
		}
		return fail(KindDataSourceUnavailable, "data source unavailable", executor.SanitizeError(err))
	}

	snap, err := src.Snapshot(ctx, o.limits)
	if err != nil {
		return o.failForErr(fail, err, KindDataSourceUnavailable, "could not read data source schema")
	}
	logState(StateSchemaResolved)

	// Generate, validate, and possibly regenerate once: the validator's
	// rejection reason is fed back into a single second attempt.
	genInput := sqlgen.Input{
		Question:          req.NaturalLanguageQuery,
		Snapshot:          snap,
		Exemplars:         def.Exemplars,
		PreviousChartSpec: req.PreviousSpec(),
	}

	sqlText, err := o.generator.Generate(ctx, genInput)
	if err != nil {
		return o.failForErr(fail, err, KindGenerationFailed, "could not generate SQL for the question")
	}
	logState(StateSQLGenerated)

	stmt, violation := sqlguard.Validate(sqlText, snap)
	if violation != nil {
		log.Info().
			Str("query_id", queryID).
			Str("rule", string(violation.Rule)).
			Msg("candidate rejected, retrying generation once")

		genInput.RejectionReason = violation.Error()
		sqlText, err = o.generator.Generate(ctx, genInput)
		if err != nil {
			return o.failForErr(fail, err, KindGenerationFailed, "could not generate SQL for the question")
		}
		stmt, violation = sqlguard.Validate(sqlText, snap)
		if violation != nil {
			return fail(KindUnsafeStatement, "generated SQL was rejected by the safety policy", violation.Error())
		}
	}
	logState(StateSQLValidated)

	result, err := o.executor.Run(ctx, src, stmt)
	if err != nil {
		return o.failForErr(fail, err, KindExecutionError, "query execution failed")
	}
	logState(StateExecuted)

	spec, err := o.charts.Generate(ctx, chartgen.Input{
		Question:     req.NaturalLanguageQuery,
		Columns:      result.Columns,
		PreviousSpec: req.PreviousSpec(),
	})
	if err != nil {
		return o.failForErr(fail, err, KindGenerationFailed, "could not generate a chart specification")
	}
	logState(StateChartGenerated)

	res := &Result{
		QueryID:   queryID,
		Summary:   buildSummary(result),
		SQL:       stmt.Text(),
		ChartSpec: spec,
		Data:      result.Rows,
		Truncated: result.Truncated,
	}
	logState(StateResponded)

	// Audit line: enough to correlate and replay, no row data.
	log.Info().
		Str("query_id", queryID).
		Str("source", req.DataSourceID).
		Int("rows", result.RowCount).
		Bool("truncated", result.Truncated).
		Dur("total", time.Since(start)).
		Msg("query answered")

	return res, nil
}

// failForErr distinguishes deadline exhaustion from a component's own
// failure kind so a slow collaborator surfaces as Timeout.
func (o *Orchestrator) failForErr(
	fail func(Kind, string, string) (*Result, *Failure),
	err error, kind Kind, message string,
) (*Result, *Failure) {
	if errors.Is(err, context.DeadlineExceeded) {
		return fail(KindTimeout, "request exceeded its time budget", err.Error())
	}
	return fail(kind, message, err.Error())
}

// buildSummary produces the deterministic natural-language answer line.
// It is intentionally not a third completion call.
func buildSummary(result source.ExecutionResult) string {
	names := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		names[i] = c.Name
	}
	cols := strings.Join(names, ", ")

	switch {
	case result.RowCount == 0:
		return "The query returned no rows."
	case result.Truncated:
		return fmt.Sprintf("Showing the first %d rows (result was truncated) with columns %s.", result.RowCount, cols)
	case result.RowCount == 1:
		return fmt.Sprintf("The query returned 1 row with columns %s.", cols)
	default:
		return fmt.Sprintf("The query returned %d rows with columns %s.", result.RowCount, cols)
	}
}
