package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"confreg.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	// tokenCookie is the fallback channel for browser clients.
	tokenCookie = "jwt"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// authenticate requires a valid token and attaches its principal to the
// request context. Every failure is the same 403 so callers learn nothing
// about why a token was refused.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := requestToken(r)
		if err != nil {
			writeError(w, r, http.StatusForbidden, codeUnauthorized, "Unauthorized")
			return
		}
		claims, err := a.tokens.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusForbidden, codeUnauthorized, "Unauthorized")
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			writeError(w, r, http.StatusForbidden, codeUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// require admits only principals satisfying req, judged by the role currently
// stored for the account rather than the one inside the token.
func (a *API) require(req auth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			if err := a.gate.Authorize(r.Context(), p, req); err != nil {
				a.handleError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) (string, error) {
	if h := r.Header.Get(authHeader); strings.TrimSpace(h) != "" {
		return extractBearerToken(h)
	}
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errors.New("missing bearer token")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
