package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error envelope for every doorman endpoint.
// Messages inside never depend on stored credential state.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// respondError writes a single-message error envelope
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(&ErrorResponse{
		Errors: []string{message},
	})
}

// respondOk writes data as a 200 JSON response; nil data sends headers only
func respondOk(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
