package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxQuestionLength bounds the natural-language question so prompt size
// stays predictable.
const MaxQuestionLength = 2000

// ConversationContext carries optional follow-up state from the caller.
// The previous spec is read-only input; it is only fed back into the
// generation prompts, never mutated.
type ConversationContext struct {
	PreviousVegaLiteSpec json.RawMessage `json:"previousVegaLiteSpec,omitempty"`
}

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	NaturalLanguageQuery string               `json:"naturalLanguageQuery"`
	DataSourceID         string               `json:"dataSourceId"`
	ConversationContext  *ConversationContext `json:"conversationContext,omitempty"`
}

// Validate checks required fields. A non-nil error means the request is
// malformed and must not enter the pipeline.
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.NaturalLanguageQuery) == "" {
		return fmt.Errorf("naturalLanguageQuery is required")
	}
	if len(r.NaturalLanguageQuery) > MaxQuestionLength {
		return fmt.Errorf("naturalLanguageQuery exceeds %d characters", MaxQuestionLength)
	}
	if strings.TrimSpace(r.DataSourceID) == "" {
		return fmt.Errorf("dataSourceId is required")
	}
	return nil
}

// PreviousSpec returns the prior chart spec, or nil when the request
// carries no conversation context.
func (r *QueryRequest) PreviousSpec() json.RawMessage {
	if r.ConversationContext == nil {
		return nil
	}
	return r.ConversationContext.PreviousVegaLiteSpec
}

// RegisterDataSourceRequest is the body of POST/PUT /api/v1/datasource.
// Connection settings arrive here and go no further than the registry;
// they never appear in any response shape.
type RegisterDataSourceRequest struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	DSN       string             `json:"dsn,omitempty"`
	ProjectID string             `json:"projectId,omitempty"`
	Dataset   string             `json:"dataset,omitempty"`
	Location  string             `json:"location,omitempty"`
	CredsFile string             `json:"credentialsFile,omitempty"`
	Exemplars []ExemplarExchange `json:"exemplars,omitempty"`
}

// ExemplarExchange is a question→SQL pair used as a few-shot example
// when generating SQL for the owning data source.
type ExemplarExchange struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

func (r *RegisterDataSourceRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(r.Kind) == "" {
		return fmt.Errorf("kind is required")
	}
	return nil
}
