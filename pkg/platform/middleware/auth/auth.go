// Package auth authenticates callers from JWT bearer tokens and gates
// role-restricted routes. The execution substrate is expected to hand every
// caller a token naming its address and granted roles; this middleware is the
// only place those tokens are parsed.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"custos/pkg/domain"
	"custos/pkg/requestcontext"
)

// Claims carried by caller tokens. Subject is the caller's hex address.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and can mint them for tests and
// operator tooling.
type Authenticator struct {
	signingKey []byte
	issuer     string
}

func New(signingKey, issuer string) *Authenticator {
	return &Authenticator{signingKey: []byte(signingKey), issuer: issuer}
}

// Mint issues a token for the given caller. Used by tests and the bootstrap
// CLI path; production tokens come from the operator's IdP.
func (a *Authenticator) Mint(caller domain.Address, roles []domain.Role, ttl time.Duration) (string, error) {
	rs := make([]string, len(roles))
	for i, r := range roles {
		rs[i] = string(r)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles: rs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Hex(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	return token.SignedString(a.signingKey)
}

// Validate parses and verifies a token, returning its claims.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.signingKey, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and records the
// caller address and roles on the request context.
func RequireAuth(a *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := a.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			caller, ok := domain.ParseAddress(claims.Subject)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - malformed subject address",
					"subject", claims.Subject,
					"request_id", requestcontext.RequestID(ctx))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			roles := make([]domain.Role, len(claims.Roles))
			for i, role := range claims.Roles {
				roles[i] = domain.Role(role)
			}

			ctx = requestcontext.WithCaller(ctx, caller)
			ctx = requestcontext.WithRoles(ctx, roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on a role. It must run inside RequireAuth. The
// guard runs before the handler so unauthorized calls never touch state.
func RequireRole(role domain.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.HasRole(ctx, role) {
				logger.WarnContext(ctx, "forbidden - missing role",
					"role", role,
					"caller", requestcontext.Caller(ctx).Hex(),
					"request_id", requestcontext.RequestID(ctx))
				writeJSONError(w, http.StatusForbidden, "forbidden", "Caller lacks required role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
