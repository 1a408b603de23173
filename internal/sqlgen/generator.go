// Package sqlgen turns a natural-language question plus a schema
// snapshot into one candidate SQL statement via the completion service.
// Its output is treated as adversarial input by the safety gate; nothing
// here is trusted downstream.
package sqlgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vizquery/vizquery/internal/llm"
	"github.com/vizquery/vizquery/internal/registry"
	"github.com/vizquery/vizquery/internal/source"
)

const systemPrompt = `You translate analytics questions into SQL for the schema you are given.

RULES:
1. Output exactly one SELECT statement (WITH/CTE form is allowed). No INSERT, UPDATE, DELETE, DDL, or procedure calls.
2. Use only the tables and columns listed in the schema.
3. Output the SQL only. No prose, no explanation, no markdown beyond an optional single code fence.
4. Do not use SQL comments.
5. Prefer explicit column lists over SELECT *.`

// Input is everything one generation attempt may see. The previous
// chart spec is conversational context only; it never contributes
// schema or table names.
type Input struct {
	Question          string
	Snapshot          source.SchemaSnapshot
	Exemplars         []registry.Exemplar
	PreviousChartSpec json.RawMessage
	RejectionReason   string
}

type Generator struct {
	completer llm.Completer
}

func New(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate makes one completion call and extracts the candidate
// statement from the reply. No retry here; retry policy belongs to the
// orchestrator.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	reply, err := g.completer.Complete(ctx, systemPrompt, BuildUserPrompt(in))
	if err != nil {
		return "", fmt.Errorf("sql generation: %w", err)
	}

	sql := ExtractSQL(reply)
	if sql == "" {
		return "", fmt.Errorf("sql generation: no statement found in completion output")
	}
	return sql, nil
}

// BuildUserPrompt renders the schema, exemplars, and follow-up context
// into the user message. Exported so tests can assert prompt laws
// (schema only, never rows; rejection reason present on retry).
func BuildUserPrompt(in Input) string {
	var sb strings.Builder

	sb.WriteString("## Schema\n\n")
	sb.WriteString(in.Snapshot.Describe())

	if len(in.Exemplars) > 0 {
		sb.WriteString("## Example questions and their SQL\n\n")
		for _, ex := range in.Exemplars {
			sb.WriteString(fmt.Sprintf("Q: %s\nSQL: %s\n\n", ex.Question, ex.SQL))
		}
	}

	if len(in.PreviousChartSpec) > 0 {
		sb.WriteString("## Conversation context\n\n")
		sb.WriteString("The user is following up on a result previously visualized as:\n")
		sb.Write(in.PreviousChartSpec)
		sb.WriteString("\nUse this only to understand what the user refers to.\n\n")
	}

	if in.RejectionReason != "" {
		sb.WriteString("## Previous attempt rejected\n\n")
		sb.WriteString("Your last statement was rejected by the safety policy: ")
		sb.WriteString(in.RejectionReason)
		sb.WriteString("\nProduce a corrected single read-only SELECT statement.\n\n")
	}

	sb.WriteString("## Question\n\n")
	sb.WriteString(strings.TrimSpace(in.Question))
	return sb.String()
}
