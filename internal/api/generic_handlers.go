// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"

	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/logging"
)

// Common error messages.
const (
	ErrInvalidBody = "Invalid request body"
	ErrNotFound    = "Not found"
	ErrNoSnapshot  = "No snapshot yet"
	ErrNoAnalytics = "Analytics disabled"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind,omitempty"`
	Attrs map[string]any `json:"attributes,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WithComponent("api").Debug("Failed to encode response", "error", err)
	}
}

// WriteError writes a plain error message.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErr maps a Kind-tagged error to its HTTP status.
func WriteErr(w http.ResponseWriter, err error) {
	kind := errors.GetKind(err)
	resp := ErrorResponse{Error: err.Error(), Attrs: errors.GetAttributes(err)}
	if kind != errors.KindUnknown {
		resp.Kind = kind.String()
	}
	WriteJSON(w, errors.HTTPStatus(err), resp)
}

// BindJSON decodes JSON from the request body into dest.
// Returns true on success, false if decoding failed (error response already sent).
func BindJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidBody)
		return false
	}
	return true
}

// successResponse is the body of mutations without a richer result.
type successResponse struct {
	Success bool `json:"success"`
}
