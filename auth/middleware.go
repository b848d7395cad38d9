package auth

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const actorKey contextKey = "actor_id"

const (
	AccessTokenCookie = "accessToken"
	tokenQueryParam   = "token"
)

type userLookup interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// Authenticator turns a request token into a verified actor identity.
type Authenticator struct {
	tokens *TokenManager
	users  userLookup
	log    *slog.Logger
}

func NewAuthenticator(tokens *TokenManager, users userLookup, log *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, log: log}
}

// Authenticate reads the token from the Authorization header, the access token
// cookie or the token query parameter, in that order. The holder must still exist.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	token := tokenFrom(r)
	if token == "" {
		return "", errors.ErrUnauthenticated
	}
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	if _, err = a.users.GetByID(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return "", errors.ErrUnauthenticated
		}
		return "", err
	}
	return claims.UserID, nil
}

// Middleware rejects unauthenticated requests through fail and stores the
// actor in the request context otherwise.
func (a *Authenticator) Middleware(fail func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, err := a.Authenticate(r)
			if err != nil {
				a.log.Debug("Request rejected", "path", r.URL.Path, "error", err)
				fail(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorID)))
		})
	}
}

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

func ActorFromContext(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(actorKey).(string)
	return actorID, ok && actorID != ""
}

func tokenFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get(tokenQueryParam)
}
