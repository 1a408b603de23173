package pipeline

import "net/http"

// Kind is the exhaustive set of pipeline failure kinds. Every internal
// error is mapped onto one of these at the orchestrator boundary; no
// unwrapped error reaches a caller.
type Kind string

const (
	KindMalformedRequest      Kind = "MalformedRequest"
	KindDataSourceNotFound    Kind = "DataSourceNotFound"
	KindDataSourceUnavailable Kind = "DataSourceUnavailable"
	KindGenerationFailed      Kind = "GenerationFailed"
	KindUnsafeStatement       Kind = "UnsafeStatement"
	KindExecutionError        Kind = "ExecutionError"
	KindTimeout               Kind = "Timeout"
)

// HTTPStatus maps a kind onto the response status: 4xx for failures the
// caller can fix, 5xx for server/collaborator failures.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMalformedRequest, KindDataSourceNotFound, KindUnsafeStatement:
		return http.StatusBadRequest
	case KindDataSourceUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Failure is a typed pipeline failure. Message is caller-safe; Details
// carries diagnostics (a policy rule name, a sanitized driver error).
type Failure struct {
	QueryID string
	Kind    Kind
	Message string
	Details string
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// NewFailure builds a failure for a request, used by the orchestrator
// and by the handler for malformed bodies that never enter the pipeline.
func NewFailure(queryID string, kind Kind, message, details string) *Failure {
	return &Failure{QueryID: queryID, Kind: kind, Message: message, Details: details}
}
