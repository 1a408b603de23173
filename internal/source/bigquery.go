package source

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQuery is a data source backed by a single BigQuery dataset. The
// service account bound to the credentials file should carry the
// dataViewer + jobUser roles only.
type BigQuery struct {
	id      string
	name    string
	client  *bigquery.Client
	dataset string
}

// OpenBigQuery creates a client scoped to one project/dataset pair.
func OpenBigQuery(ctx context.Context, id, name, projectID, dataset, credentialsFile, location string) (*BigQuery, error) {
	if projectID == "" || dataset == "" {
		return nil, fmt.Errorf("bigquery source %q: projectId and dataset are required", id)
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery source %q: %w", id, err)
	}
	if location != "" {
		client.Location = location
	}

	return &BigQuery{id: id, name: name, client: client, dataset: dataset}, nil
}

func (b *BigQuery) ID() string   { return b.id }
func (b *BigQuery) Name() string { return b.name }
func (b *BigQuery) Kind() string { return "bigquery" }

func (b *BigQuery) Ping(ctx context.Context) error {
	if _, err := b.client.Dataset(b.dataset).Metadata(ctx); err != nil {
		return fmt.Errorf("dataset metadata: %w", err)
	}
	return nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}

// Snapshot walks the dataset's tables and maps each field type onto the
// shared type vocabulary, capped by limits.
func (b *BigQuery) Snapshot(ctx context.Context, limits SnapshotLimits) (SchemaSnapshot, error) {
	snap := SchemaSnapshot{DataSourceID: b.id}

	it := b.client.Dataset(b.dataset).Tables(ctx)
	for {
		tbl, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return SchemaSnapshot{}, fmt.Errorf("list tables: %w", err)
		}
		if limits.MaxTables > 0 && len(snap.Tables) >= limits.MaxTables {
			snap.Truncated = true
			break
		}

		meta, err := tbl.Metadata(ctx)
		if err != nil {
			log.Warn().Err(err).Str("table", tbl.TableID).Msg("skipping table without metadata")
			continue
		}

		table := Table{Name: tbl.TableID}
		for _, f := range meta.Schema {
			if limits.MaxColumns > 0 && len(table.Columns) >= limits.MaxColumns {
				snap.Truncated = true
				break
			}
			table.Columns = append(table.Columns, Column{
				Name: f.Name,
				Type: bigqueryFieldType(f.Type),
			})
		}
		snap.Tables = append(snap.Tables, table)
	}
	return snap, nil
}

// Query runs the statement as a BigQuery job and reads up to rowCap rows.
func (b *BigQuery) Query(ctx context.Context, sqlText string, rowCap int) (ExecutionResult, error) {
	q := b.client.Query(sqlText)
	q.DefaultDatasetID = b.dataset

	job, err := q.Run(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("job wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return ExecutionResult{}, fmt.Errorf("query failed: %w", err)
	}

	it, err := job.Read(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("job read: %w", err)
	}

	return drainBigQueryRows(
		func(dst *map[string]bigquery.Value) error { return it.Next(dst) },
		func() bigquery.Schema { return it.Schema },
		rowCap,
	)
}

// drainBigQueryRows reads rows until the iterator is done, keeping at
// most rowCap of them. Truncated is set only when a row actually
// arrives past the cap: a result of exactly rowCap rows is complete.
func drainBigQueryRows(next func(*map[string]bigquery.Value) error, schema func() bigquery.Schema, rowCap int) (ExecutionResult, error) {
	var result ExecutionResult
	for {
		var row map[string]bigquery.Value
		err := next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return ExecutionResult{}, fmt.Errorf("read row: %w", err)
		}

		// The schema is populated once the first row has been fetched.
		if result.Columns == nil {
			for _, f := range schema() {
				result.Columns = append(result.Columns, ResultColumn{
					Name:         f.Name,
					InferredType: bigqueryFieldType(f.Type),
				})
			}
		}

		if rowCap > 0 && len(result.Rows) >= rowCap {
			result.Truncated = true
			break
		}

		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		result.Rows = append(result.Rows, m)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

func bigqueryFieldType(t bigquery.FieldType) string {
	switch t {
	case bigquery.IntegerFieldType:
		return "integer"
	case bigquery.FloatFieldType, bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return "double"
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return "timestamp"
	case bigquery.DateFieldType:
		return "date"
	case bigquery.BooleanFieldType:
		return "boolean"
	default:
		return "text"
	}
}
