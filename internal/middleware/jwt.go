package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"pollchat/internal/respond"
)

// Identity is the caller an access token was issued to.
type Identity struct {
	UserID   int
	Username string
}

type identityKey struct{}

// TokenValidator is what the middleware needs from the user service.
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle rejects requests without a valid access token and stores the caller's
// Identity in the request context.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := accessToken(r)
		if !ok {
			respond.Error(w, http.StatusUnauthorized, "Missing authentication token")
			return
		}

		userID, username, err := am.validator.ValidateToken(token)
		if err != nil || userID <= 0 {
			respond.Error(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: userID, Username: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessToken takes the bearer token from the Authorization header, or from
// ?token= for EventSource and WebSocket clients that cannot set headers. A
// header with another scheme counts as no token at all.
func accessToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}
	token := r.URL.Query().Get("token")
	return token, token != ""
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) (int, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}
