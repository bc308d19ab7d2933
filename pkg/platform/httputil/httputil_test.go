package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"custos/pkg/platform/sentinel"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("wrapped sentinel maps to status", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{fmt.Errorf("issuer: %w", sentinel.ErrNotFound), http.StatusNotFound},
			{fmt.Errorf("issuer: %w", sentinel.ErrExists), http.StatusConflict},
			{fmt.Errorf("caller: %w", sentinel.ErrUnauthorized), http.StatusForbidden},
			{fmt.Errorf("claim: %w", sentinel.ErrInvalidSignature), http.StatusBadRequest},
			{fmt.Errorf("topics: %w", sentinel.ErrInvalidArgument), http.StatusBadRequest},
			{fmt.Errorf("redis: %w", sentinel.ErrUnavailable), http.StatusServiceUnavailable},
		}
		for _, tc := range cases {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)
			if w.Code != tc.code {
				t.Fatalf("%v: expected status %d, got %d", tc.err, tc.code, w.Code)
			}
		}
	})
}
