// Package chartgen produces a Vega-Lite specification for an executed
// result via the completion service. The spec is an opaque external
// artifact: the core only guarantees the data binding it injects itself.
package chartgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vizquery/vizquery/internal/llm"
	"github.com/vizquery/vizquery/internal/source"
)

// DataName is the named data binding injected into every generated
// spec. The presentation layer attaches the result rows under it.
const DataName = "table"

const defaultSchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

const systemPrompt = `You produce Vega-Lite v5 chart specifications as JSON.

RULES:
1. Output a single JSON object and nothing else (an optional json code fence is allowed).
2. Never include a "data" property with inline values; the data is bound externally.
3. Choose mark and encodings from the column names and types you are given.
4. When an existing specification is provided, EDIT it: change only what the instruction requires and keep every other encoding exactly as it is.`

// Input for one chart generation. Columns carry names and inferred
// types only — raw row values never enter the prompt.
type Input struct {
	Question     string
	Columns      []source.ResultColumn
	PreviousSpec json.RawMessage
}

type Generator struct {
	completer llm.Completer
}

func New(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate makes one completion call and returns the parsed spec with
// the managed fields injected.
func (g *Generator) Generate(ctx context.Context, in Input) (json.RawMessage, error) {
	reply, err := g.completer.Complete(ctx, systemPrompt, BuildUserPrompt(in))
	if err != nil {
		return nil, fmt.Errorf("chart generation: %w", err)
	}

	raw := ExtractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("chart generation: no JSON object found in completion output")
	}

	var spec map[string]any
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("chart generation: invalid spec JSON: %w", err)
	}

	// The only structurally guaranteed fields: the named data binding
	// (replacing any inline values the model produced) and a schema URL
	// when the model omitted one.
	spec["data"] = map[string]any{"name": DataName}
	if _, ok := spec["$schema"]; !ok {
		spec["$schema"] = defaultSchemaURL
	}

	out, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("chart generation: re-encode spec: %w", err)
	}
	return out, nil
}

// BuildUserPrompt renders column metadata and the optional base spec.
// Exported for prompt-law tests.
func BuildUserPrompt(in Input) string {
	var sb strings.Builder

	sb.WriteString("## Result columns\n\n")
	for _, c := range in.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", c.Name, c.InferredType))
	}
	sb.WriteString("\n")

	if len(in.PreviousSpec) > 0 {
		sb.WriteString("## Existing specification to edit\n\n")
		sb.Write(in.PreviousSpec)
		sb.WriteString("\n\nApply the user's instruction as an edit to this specification. Preserve all encodings the instruction does not mention.\n\n")
	}

	sb.WriteString("## User request\n\n")
	sb.WriteString(strings.TrimSpace(in.Question))
	return sb.String()
}

// ExtractJSON pulls a JSON object from model output: a ```json fence
// first, otherwise the first balanced {...} block.
func ExtractJSON(text string) string {
	lower := strings.ToLower(text)
	if idx := strings.Index(lower, "```json"); idx != -1 {
		body := text[idx+len("```json"):]
		if end := strings.Index(body, "```"); end != -1 {
			if s := strings.TrimSpace(body[:end]); s != "" {
				return s
			}
		}
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
