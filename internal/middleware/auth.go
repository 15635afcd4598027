package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/models"
)

type ContextKey string

const UserContextKey ContextKey = "currentUser"

// UserStore loads the user named by a verified token.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// Authenticator verifies bearer credentials issued by the auth service.
type Authenticator struct {
	secret []byte
	users  UserStore
	Log    *logger.Logger
}

// NewAuthenticator creates an authenticator for HS256 tokens signed with secret.
func NewAuthenticator(secret string, users UserStore, log *logger.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, Log: log}
}

// Authenticate resolves a credential to the identity of an existing user.
// Every failure is ErrUnauthorized except store outages.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (models.Identity, error) {
	if credential == "" {
		return models.Identity{}, fmt.Errorf("%w: missing auth token", models.ErrUnauthorized)
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: invalid token claims", models.ErrUnauthorized)
	}
	userID, err := claimUserID(claims)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Identity{}, fmt.Errorf("%w: unknown user %d", models.ErrUnauthorized, userID)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	return models.IdentityOf(user), nil
}

func claimUserID(claims jwt.MapClaims) (int64, error) {
	switch v := claims["user_id"].(type) {
	case float64: // JWT numbers are decoded as float64
		if v > 0 && v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: invalid user_id claim", models.ErrUnauthorized)
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(UserContextKey).(models.Identity)
	return identity, ok
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, UserContextKey, identity)
}

// AuthMiddleware requires an Authorization: Bearer header.
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return a.guard(next, func(r *http.Request) string {
		return bearer(r.Header.Get("Authorization"))
	})
}

// WebSocketAuthMiddleware also accepts the token query parameter, since
// browsers cannot set headers on a WebSocket handshake. A refused handshake
// is never upgraded.
func (a *Authenticator) WebSocketAuthMiddleware(next http.Handler) http.Handler {
	return a.guard(next, func(r *http.Request) string {
		if token := bearer(r.Header.Get("Authorization")); token != "" {
			return token
		}
		return r.URL.Query().Get("token")
	})
}

func (a *Authenticator) guard(next http.Handler, credential func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r.Context(), credential(r))
		if err != nil {
			if errors.Is(err, models.ErrUnauthorized) {
				a.Log.Debug("Rejected credential", "path", r.URL.Path, "error", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			a.Log.Error("Failed to authenticate", "path", r.URL.Path, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func bearer(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
