// Package api implements the Monteerly REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/session"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	tokenKey
	queryTokenKey
)

// Resolver maps bearer tokens to identities.
type Resolver interface {
	Resolve(ctx context.Context, token string) (session.Identity, error)
}

// queryTokenParam carries the session token for EventSource clients,
// which cannot set headers.
const queryTokenParam = "access_token"

// AuthMiddleware resolves the "Authorization: Bearer <token>" header and
// stores the identity in the request context. Requests without a live
// session are rejected with 401.
func AuthMiddleware(resolver Resolver) func(http.Handler) http.Handler {
	return authenticate(resolver, bearerToken)
}

// StreamAuthMiddleware is AuthMiddleware for the event stream routes: when
// no header is sent it falls back to the token StripAccessToken lifted out
// of the query string.
func StreamAuthMiddleware(resolver Resolver) func(http.Handler) http.Handler {
	return authenticate(resolver, func(r *http.Request) string {
		if token := bearerToken(r); token != "" {
			return token
		}
		token, _ := r.Context().Value(queryTokenKey).(string)
		return token
	})
}

func authenticate(resolver Resolver, tokenOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenOf(r)
			identity, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, identity)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StripAccessToken removes the access_token query parameter from the
// request URL and RequestURI, keeping its value in the context. Mount it
// ahead of any request logger so tokens never reach the logs.
func StripAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(queryTokenParam) {
			next.ServeHTTP(w, r)
			return
		}
		token := q.Get(queryTokenParam)
		q.Del(queryTokenParam)

		u := *r.URL
		u.RawQuery = q.Encode()
		r = r.WithContext(context.WithValue(r.Context(), queryTokenKey, token))
		r.URL = &u
		r.RequestURI = u.RequestURI()
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(ctx context.Context) (session.Identity, error) {
	identity, ok := ctx.Value(identityKey).(session.Identity)
	if !ok || identity.UserID == "" {
		return session.Identity{}, apperr.ErrNotAuthenticated
	}
	return identity, nil
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
