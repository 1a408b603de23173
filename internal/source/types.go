// Package source defines the data-source driver contract and the schema
// and result shapes that flow through the query pipeline.
package source

import (
	"context"
	"fmt"
	"strings"
)

// Column is one column of a table in a schema snapshot.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is one table in a schema snapshot.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// SchemaSnapshot is a bounded description of a data source's tables,
// built fresh per request and never persisted.
type SchemaSnapshot struct {
	DataSourceID string  `json:"dataSourceId"`
	Tables       []Table `json:"tables"`
	Truncated    bool    `json:"truncated"`
}

// HasTable reports whether the snapshot contains a table with the given
// name, case-insensitively.
func (s SchemaSnapshot) HasTable(name string) bool {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// Describe renders the snapshot as a text block for prompt injection.
func (s SchemaSnapshot) Describe() string {
	var sb strings.Builder
	for _, t := range s.Tables {
		sb.WriteString(fmt.Sprintf("### %s\n", t.Name))
		for _, c := range t.Columns {
			sb.WriteString(fmt.Sprintf("- %s %s\n", c.Name, c.Type))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// SnapshotLimits bounds how much schema is enumerated so downstream
// prompt size stays predictable.
type SnapshotLimits struct {
	MaxTables  int
	MaxColumns int
}

// ResultColumn is a column of an executed result with its inferred type.
type ResultColumn struct {
	Name         string `json:"name"`
	InferredType string `json:"inferredType"`
}

// ExecutionResult holds the rows of an executed statement. Truncated is
// set when the row cap was hit; Rows then holds exactly the cap.
type ExecutionResult struct {
	Columns   []ResultColumn
	Rows      []map[string]any
	RowCount  int
	Truncated bool
}

// Source is a resolved, credentialed connection target. Query must only
// ever be given statements that passed the safety gate; drivers still
// run read-only as defense in depth.
type Source interface {
	ID() string
	Name() string
	Kind() string
	Snapshot(ctx context.Context, limits SnapshotLimits) (SchemaSnapshot, error)
	Query(ctx context.Context, sql string, rowCap int) (ExecutionResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeType maps driver-specific type names onto the small
// vocabulary used in prompts and chart typing.
func NormalizeType(dbType string) string {
	t := strings.ToLower(strings.TrimSpace(dbType))
	switch {
	case t == "":
		return "text"
	case strings.Contains(t, "int"):
		return "integer"
	case strings.Contains(t, "double"), strings.Contains(t, "float"),
		strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "real"):
		return "double"
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"):
		return "timestamp"
	case strings.Contains(t, "date"):
		return "date"
	case strings.Contains(t, "bool"):
		return "boolean"
	default:
		return "text"
	}
}
