// Package auth provides the session guard and CSRF middleware gating the
// authenticated routes. Identity travels in a signed JWT cookie; on every
// guarded request the referenced user and their owned URLs are re-read from
// storage, so the identity is a pointer to the store, not a cached copy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/vkarpenko/shrturl/internal/logger"
	"github.com/vkarpenko/shrturl/internal/models"
	"github.com/vkarpenko/shrturl/internal/session"
)

type userKeeper interface {
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]models.URLMapping, error)
}

// Identity is the per-request authenticated state: the user as currently
// stored plus a fresh snapshot of their owned mappings.
type Identity struct {
	User      *models.User
	OwnedURLs []models.URLMapping
}

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds user-specific identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// IdentityKey is the context key under which the guard stores the Identity.
const IdentityKey ContextKey = "identity"

// SessionKey is the context key under which the CSRF middleware stores the
// request's session.
const SessionKey ContextKey = "session"

// Guard authenticates requests and enforces the CSRF policy.
type Guard struct {
	db             userKeeper
	sessions       *session.Manager
	authCookieName string
	signingKey     []byte
	tokenTTL       time.Duration
}

// New creates a Guard over the given user storage and session manager.
func New(
	db userKeeper,
	sessions *session.Manager,
	authCookieName string,
	signingKey []byte,
	tokenTTL time.Duration,
) *Guard {
	return &Guard{
		db:             db,
		sessions:       sessions,
		authCookieName: authCookieName,
		signingKey:     signingKey,
		tokenTTL:       tokenTTL,
	}
}

// SetAuthCookie signs a JWT for the user and sets it as the identity cookie.
func (g *Guard) SetAuthCookie(response http.ResponseWriter, usr *models.User) error {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(g.tokenTTL)),
		},
		UserID:   usr.ID,
		Username: usr.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(g.signingKey)
	if err != nil {
		return err
	}

	http.SetCookie(response, &http.Cookie{
		Name:     g.authCookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
	})

	return nil
}

// ClearAuthCookie expires the identity cookie.
func (g *Guard) ClearAuthCookie(response http.ResponseWriter) {
	http.SetCookie(response, &http.Cookie{
		Name:     g.authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// RequireAuthenticated admits the request only when the identity cookie
// verifies and the referenced user still exists, re-fetching the user and
// their owned URLs from storage. Otherwise the caller is redirected to the
// login entry point.
func (g *Guard) RequireAuthenticated(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		identity, err := g.resolveIdentity(request)
		if err != nil {
			logger.Log.Debugln("Error resolving request identity: ", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}
		if identity == nil {
			http.Redirect(response, request, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(request.Context(), IdentityKey, identity)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// RedirectAuthenticated sends already-authenticated callers away from the
// public entry pages (login, register) back to the index.
func (g *Guard) RedirectAuthenticated(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		identity, err := g.resolveIdentity(request)
		if err != nil {
			logger.Log.Debugln("Error resolving request identity: ", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}
		if identity != nil {
			http.Redirect(response, request, "/", http.StatusFound)
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// VerifyCSRF gates a state-mutating route: the submitted form token must
// equal the session's current token. On mismatch the request is rejected
// with 401 before any side effect. The verified session is stored in the
// request context for the handler.
func (g *Guard) VerifyCSRF(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		sess, err := g.sessions.Ensure(response, request)
		if err != nil {
			logger.Log.Debugln("Error calling the `g.sessions.Ensure()`: ", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}

		if err := request.ParseForm(); err != nil {
			response.WriteHeader(http.StatusBadRequest)
			return
		}

		if !g.sessions.CheckCSRF(sess, request.PostFormValue("csrf")) {
			response.WriteHeader(http.StatusUnauthorized)
			return
		}

		if err := g.sessions.ConsumeCSRF(request.Context(), sess); err != nil {
			logger.Log.Debugln("Error calling the `g.sessions.ConsumeCSRF()`: ", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(request.Context(), SessionKey, sess)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// IdentityFromContext returns the Identity stored by RequireAuthenticated.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*Identity)
	return identity, ok
}

// SessionFromContext returns the session stored by VerifyCSRF.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(SessionKey).(*session.Session)
	return sess, ok
}

func (g *Guard) resolveIdentity(request *http.Request) (*Identity, error) {
	cookie, err := request.Cookie(g.authCookieName)
	if err != nil {
		return nil, nil
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		cookie.Value,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return g.signingKey, nil
		},
	)
	if err != nil || !token.Valid {
		return nil, nil
	}

	usr, err := g.db.GetUserByID(request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	ownedURLs, err := g.db.FindByOwner(request.Context(), usr.ID)
	if err != nil {
		return nil, err
	}

	return &Identity{
		User:      usr,
		OwnedURLs: ownedURLs,
	}, nil
}
