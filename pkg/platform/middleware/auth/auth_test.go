package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custos/pkg/domain"
	"custos/pkg/requestcontext"
)

var testAddr = domain.Address{0xAA, 0x01}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func authedRequest(t *testing.T, a *Authenticator, roles []domain.Role) *http.Request {
	t.Helper()
	token, err := a.Mint(testAddr, roles, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequireAuth(t *testing.T) {
	a := New("test-signing-key", "custos")

	t.Run("valid token reaches handler with caller context", func(t *testing.T) {
		var gotCaller domain.Address
		var gotAgent bool
		handler := RequireAuth(a, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCaller = requestcontext.Caller(r.Context())
			gotAgent = requestcontext.HasRole(r.Context(), domain.RoleAgent)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest(t, a, []domain.Role{domain.RoleAgent}))

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, testAddr, gotCaller)
		require.True(t, gotAgent)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		handler := RequireAuth(a, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := a.Mint(testAddr, nil, -time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		handler := RequireAuth(a, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with different key rejected", func(t *testing.T) {
		other := New("other-key", "custos")
		handler := RequireAuth(a, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest(t, other, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	a := New("test-signing-key", "custos")

	wrap := func(role domain.Role, next http.Handler) http.Handler {
		return RequireAuth(a, discardLogger())(RequireRole(role, discardLogger())(next))
	}

	t.Run("caller with role passes", func(t *testing.T) {
		called := false
		handler := wrap(domain.RoleManager, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest(t, a, []domain.Role{domain.RoleManager, domain.RoleAgent}))
		require.True(t, called)
	})

	t.Run("caller without role gets 403 before handler", func(t *testing.T) {
		handler := wrap(domain.RoleAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest(t, a, []domain.Role{domain.RoleAgent}))
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}
