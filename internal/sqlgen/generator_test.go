package sqlgen_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vizquery/vizquery/internal/registry"
	"github.com/vizquery/vizquery/internal/source"
	"github.com/vizquery/vizquery/internal/sqlgen"
)

type fakeCompleter struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	return f.reply, f.err
}

func testSnapshot() source.SchemaSnapshot {
	return source.SchemaSnapshot{
		DataSourceID: "warehouse",
		Tables: []source.Table{
			{Name: "sales_data", Columns: []source.Column{
				{Name: "region", Type: "text"},
				{Name: "amount", Type: "double"},
			}},
		},
	}
}

func TestGenerateExtractsFencedSQL(t *testing.T) {
	fc := &fakeCompleter{reply: "Here you go:\n```sql\nSELECT region FROM sales_data\n```"}
	g := sqlgen.New(fc)

	sql, err := g.Generate(context.Background(), sqlgen.Input{
		Question: "sales by region",
		Snapshot: testSnapshot(),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sql != "SELECT region FROM sales_data" {
		t.Errorf("sql = %q", sql)
	}
	if fc.calls != 1 {
		t.Errorf("calls = %d, want 1", fc.calls)
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Run("completer failure", func(t *testing.T) {
		fc := &fakeCompleter{err: errors.New("api down")}
		g := sqlgen.New(fc)
		if _, err := g.Generate(context.Background(), sqlgen.Input{Question: "q", Snapshot: testSnapshot()}); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("no statement in reply", func(t *testing.T) {
		fc := &fakeCompleter{reply: "I cannot answer that question."}
		g := sqlgen.New(fc)
		if _, err := g.Generate(context.Background(), sqlgen.Input{Question: "q", Snapshot: testSnapshot()}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestBuildUserPromptSections(t *testing.T) {
	in := sqlgen.Input{
		Question: "total sales by region",
		Snapshot: testSnapshot(),
		Exemplars: []registry.Exemplar{
			{Question: "how many rows", SQL: "SELECT COUNT(*) FROM sales_data"},
		},
		PreviousChartSpec: json.RawMessage(`{"mark":"bar"}`),
		RejectionReason:   "unknown_table: secrets",
	}
	prompt := sqlgen.BuildUserPrompt(in)

	for _, want := range []string{
		"## Schema",
		"sales_data",
		"region",
		"## Example questions and their SQL",
		"SELECT COUNT(*) FROM sales_data",
		"## Conversation context",
		`{"mark":"bar"}`,
		"## Previous attempt rejected",
		"unknown_table: secrets",
		"## Question",
		"total sales by region",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildUserPromptOmitsEmptySections(t *testing.T) {
	prompt := sqlgen.BuildUserPrompt(sqlgen.Input{
		Question: "q",
		Snapshot: testSnapshot(),
	})
	for _, absent := range []string{
		"## Example questions",
		"## Conversation context",
		"## Previous attempt rejected",
	} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt should not contain %q", absent)
		}
	}
}

func TestExtractSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"sql fence with prose", "Sure:\n```sql\nSELECT a FROM t\n```\nThat should work.", "SELECT a FROM t"},
		{"plain fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"fence with other tag", "```postgresql\nSELECT 1\n```", "SELECT 1"},
		{"bare select", "SELECT region FROM sales_data", "SELECT region FROM sales_data"},
		{"bare with", "WITH t AS (SELECT 1) SELECT * FROM t", "WITH t AS (SELECT 1) SELECT * FROM t"},
		{"bare select padded", "  \nselect 1\n", "select 1"},
		{"prose only", "I cannot write that query.", ""},
		{"empty", "", ""},
		{"fence without sql", "```\nnot a statement\n```", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sqlgen.ExtractSQL(tc.in); got != tc.want {
				t.Errorf("ExtractSQL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
