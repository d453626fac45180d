package api

import (
	"encoding/json"
	"net/http"

	"github.com/taskcluster/artifactcore/artifacterr"
)

// writeJSON writes v directly as the response body: flat, discriminated
// JSON objects, not wrapped in an envelope.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape for a rejected request. Code is the
// artifacterr.Kind for service errors, "InputError" for requests the
// handler rejects itself, and "RateLimited" for throttled requests.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// statusForKind maps a transport-neutral error Kind to the HTTP status
// code the handler replies with.
func statusForKind(kind artifacterr.Kind) int {
	switch kind {
	case artifacterr.KindInput:
		return http.StatusBadRequest
	case artifacterr.KindRequestConflict:
		return http.StatusConflict
	case artifacterr.KindNotFound:
		return http.StatusNotFound
	case artifacterr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps any error returned by the Artifact Service to its
// HTTP representation.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := artifacterr.KindOf(err)
	writeError(w, statusForKind(kind), string(kind), err.Error())
}
