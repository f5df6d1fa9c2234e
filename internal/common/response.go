package common

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the canonical error shape: {"error":{code,message,details}}.
type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the machine-readable error code alongside the message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes an error response in the canonical envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Redirect issues a 303 redirect with no body. Gateway return flows always
// answer the browser with a redirect, never rendered content.
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}
