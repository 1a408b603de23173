package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/vizquery/vizquery/internal/models"
	"github.com/vizquery/vizquery/internal/pipeline"
)

// QueryHandler handles POST /api/v1/query.
type QueryHandler struct {
	pipe *pipeline.Orchestrator
}

func NewQueryHandler(pipe *pipeline.Orchestrator) *QueryHandler {
	return &QueryHandler{pipe: pipe}
}

// Execute decodes the request, runs the pipeline, and writes exactly
// one of the success or error shapes, both carrying a queryId.
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// The body never reached the pipeline, so mint the correlation
		// id here: the error shape still carries one.
		f := pipeline.NewFailure(uuid.NewString(), pipeline.KindMalformedRequest, "invalid request body", err.Error())
		writeFailure(w, f)
		return
	}

	result, failure := h.pipe.Execute(r.Context(), req)
	if failure != nil {
		writeFailure(w, failure)
		return
	}

	data := result.Data
	if data == nil {
		data = []map[string]any{}
	}
	models.WriteJSON(w, http.StatusOK, models.QueryResponse{
		QueryID:                 result.QueryID,
		NaturalLanguageResponse: result.Summary,
		SQLQuery:                result.SQL,
		VegaLiteSpec:            json.RawMessage(result.ChartSpec),
		Data:                    data,
	})
}

// QueryDisabled answers the query endpoint when no completion service
// is configured, keeping the stable error shape on a route that cannot
// do any work.
func QueryDisabled(w http.ResponseWriter, r *http.Request) {
	f := pipeline.NewFailure(uuid.NewString(), pipeline.KindGenerationFailed,
		"query translation is disabled", "no completion service is configured")
	writeFailure(w, f)
}

// writeFailure emits the stable error shape: the failure kind as the
// short error, the caller-safe message and diagnostics as details.
func writeFailure(w http.ResponseWriter, f *pipeline.Failure) {
	details := f.Message
	if f.Details != "" {
		details += ": " + f.Details
	}
	models.WriteQueryError(w, f.Kind.HTTPStatus(), f.QueryID, string(f.Kind), details)
}
