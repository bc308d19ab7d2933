// Package httputil centralizes JSON encoding and error translation for the
// HTTP layer so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"custos/pkg/platform/sentinel"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are swallowed;
// by then the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps sentinel errors onto HTTP statuses. Unrecognized errors are
// reported as 500 without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Description: err.Error()})
	case errors.Is(err, sentinel.ErrExists):
		WriteJSON(w, http.StatusConflict, errorBody{Error: "conflict", Description: err.Error()})
	case errors.Is(err, sentinel.ErrUnauthorized):
		WriteJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Description: err.Error()})
	case errors.Is(err, sentinel.ErrInvalidSignature),
		errors.Is(err, sentinel.ErrInvalidArgument):
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Description: err.Error()})
	case errors.Is(err, sentinel.ErrUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
	default:
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
