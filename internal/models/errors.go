package models

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the stable failure shape for every endpoint. QueryID
// is set when a request made it far enough to be assigned one.
type ErrorResponse struct {
	QueryID string `json:"queryId,omitempty"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, ErrorResponse{Error: message})
}

func WriteQueryError(w http.ResponseWriter, code int, queryID, message, details string) {
	WriteJSON(w, code, ErrorResponse{QueryID: queryID, Error: message, Details: details})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
