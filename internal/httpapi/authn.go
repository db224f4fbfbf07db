package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/halolight/halolight-api-go/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	msgNoToken      = "no token provided"
	msgInvalidToken = "invalid or expired token"
)

var errNoToken = errors.New(msgNoToken)

// authenticate verifies the bearer access token and attaches the caller's
// identity, with role names freshly loaded, to the request context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, msgNoToken)
			return
		}
		id, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				unauthorized(w, r, msgInvalidToken)
				return
			}
			a.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// RequireRole admits callers holding at least one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, r, msgNoToken)
				return
			}
			if !id.HasAnyRole(roles...) {
				forbidden(w, r, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission re-resolves the caller's permissions on every request and
// admits exact or wildcard matches of perm.
func (a *API) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, r, msgNoToken)
				return
			}
			if err := a.auth.Authorize(r.Context(), id.UserID, perm); err != nil {
				switch {
				case errors.Is(err, auth.ErrForbidden):
					forbidden(w, r, "missing permission "+perm)
				case auth.IsUnauthorized(err):
					unauthorized(w, r, msgInvalidToken)
				default:
					a.writeServiceError(w, r, err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="halolight"`)
	writeError(w, r, http.StatusUnauthorized, codeUnauthorized, msg)
}

func forbidden(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
	writeError(w, r, http.StatusForbidden, codeForbidden, msg)
}

// identity returns the caller set by authenticate. Routes behind it always
// have one; the zero value only appears when wiring is broken.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errNoToken
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}
