package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// PostgresPoolConfig bounds the per-source connection pool.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Postgres is a data source backed by a PostgreSQL database reached
// through a bounded database/sql pool on the pgx driver.
type Postgres struct {
	id   string
	name string
	db   *sql.DB
}

// OpenPostgres opens and pings a pooled connection for a registered
// Postgres data source. The DSN should reference a read-only role.
func OpenPostgres(ctx context.Context, id, name, dsn string, cfg PostgresPoolConfig) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres source %q: dsn is required", id)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres source %q: %w", id, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres source %q: %w", id, err)
	}

	return NewPostgres(id, name, db), nil
}

// NewPostgres wraps an existing handle. Used by OpenPostgres and by
// tests that inject a mock database.
func NewPostgres(id, name string, db *sql.DB) *Postgres {
	return &Postgres{id: id, name: name, db: db}
}

func (p *Postgres) ID() string   { return p.id }
func (p *Postgres) Name() string { return p.name }
func (p *Postgres) Kind() string { return "postgres" }

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

const snapshotQuery = `
SELECT c.table_name, c.column_name, c.data_type
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

// Snapshot enumerates public base tables and their columns, capped by
// limits so the result stays prompt-sized.
func (p *Postgres) Snapshot(ctx context.Context, limits SnapshotLimits) (SchemaSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, snapshotQuery)
	if err != nil {
		return SchemaSnapshot{}, fmt.Errorf("introspect schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := SchemaSnapshot{DataSourceID: p.id}
	var current *Table

	for rows.Next() {
		var tableName, columnName, dataType string
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return SchemaSnapshot{}, fmt.Errorf("scan schema row: %w", err)
		}

		if current == nil || current.Name != tableName {
			if limits.MaxTables > 0 && len(snap.Tables) >= limits.MaxTables {
				snap.Truncated = true
				break
			}
			snap.Tables = append(snap.Tables, Table{Name: tableName})
			current = &snap.Tables[len(snap.Tables)-1]
		}
		if limits.MaxColumns > 0 && len(current.Columns) >= limits.MaxColumns {
			snap.Truncated = true
			continue
		}
		current.Columns = append(current.Columns, Column{
			Name: columnName,
			Type: NormalizeType(dataType),
		})
	}
	if err := rows.Err(); err != nil {
		return SchemaSnapshot{}, fmt.Errorf("iterate schema rows: %w", err)
	}
	return snap, nil
}

// Query runs a statement inside a read-only transaction and scans up to
// rowCap rows. Read-only is a driver-level guarantee independent of the
// safety gate: either control failing alone still prevents mutation.
func (p *Postgres) Query(ctx context.Context, sqlText string, rowCap int) (ExecutionResult, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Warn().Err(err).Str("source", p.id).Msg("rollback failed")
		}
	}()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("read column types: %w", err)
	}

	result := ExecutionResult{Columns: make([]ResultColumn, len(colTypes))}
	for i, ct := range colTypes {
		result.Columns[i] = ResultColumn{
			Name:         ct.Name(),
			InferredType: NormalizeType(ct.DatabaseTypeName()),
		}
	}

	scanDest := make([]any, len(colTypes))
	for rows.Next() {
		if rowCap > 0 && len(result.Rows) >= rowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(colTypes))
		for i := range values {
			scanDest[i] = &values[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return ExecutionResult{}, fmt.Errorf("scan result row: %w", err)
		}

		row := make(map[string]any, len(colTypes))
		for i, col := range result.Columns {
			row[col.Name] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ExecutionResult{}, fmt.Errorf("iterate result rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue makes driver values JSON-friendly ([]byte arrives for
// text and numeric columns under database/sql).
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
