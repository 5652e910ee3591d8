package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSONError sends {"status": "error", "title": message}.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(w, statusCode, scrapeResponse{Status: statusError, Title: message})
}

// RespondWithJSON marshals payload and writes it with code.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to marshal JSON response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
