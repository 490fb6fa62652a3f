// Package session implements the server-side request session: a cookie-keyed
// record holding the current CSRF token and the one-time flash link shown
// after a URL is shortened. The store is abstracted behind a get/set/destroy
// interface so a backed implementation can replace the in-memory one.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Session is the server-held state bound to one browser via the session cookie.
type Session struct {
	ID        string
	CSRFToken string
	FlashLink string
	ExpiresAt time.Time
}

// Store persists sessions keyed by session id.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, bool, error)
	Set(ctx context.Context, session *Session) error
	Destroy(ctx context.Context, sessionID string) error
}

// Manager issues session cookies and owns CSRF token rotation.
type Manager struct {
	store           Store
	cookieName      string
	ttl             time.Duration
	csrfTokenLength int
}

// NewManager creates a session Manager on top of the given store.
func NewManager(store Store, cookieName string, ttl time.Duration, csrfTokenLength int) *Manager {
	return &Manager{
		store:           store,
		cookieName:      cookieName,
		ttl:             ttl,
		csrfTokenLength: csrfTokenLength,
	}
}

// Ensure returns the request's session, creating a fresh one (and setting the
// session cookie) when the request carries none or the referenced session has
// expired.
func (m *Manager) Ensure(response http.ResponseWriter, request *http.Request) (*Session, error) {
	if cookie, err := request.Cookie(m.cookieName); err == nil {
		session, found, err := m.store.Get(request.Context(), cookie.Value)
		if err != nil {
			return nil, err
		}
		if found {
			return session, nil
		}
	}

	session := &Session{
		ID:        uuid.New().String(),
		ExpiresAt: time.Now().Add(m.ttl),
	}
	if err := m.store.Set(request.Context(), session); err != nil {
		return nil, err
	}

	http.SetCookie(response, &http.Cookie{
		Name:     m.cookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
	})

	return session, nil
}

// RotateCSRF replaces the session's CSRF token with a fresh one and persists
// the session. It must run before the page presenting the token is rendered.
func (m *Manager) RotateCSRF(ctx context.Context, session *Session) (string, error) {
	token, err := generateToken(m.csrfTokenLength)
	if err != nil {
		return "", err
	}

	session.CSRFToken = token
	if err := m.store.Set(ctx, session); err != nil {
		return "", err
	}

	return token, nil
}

// ConsumeCSRF invalidates the session's current token after a successful
// check, making every issued token single-use.
func (m *Manager) ConsumeCSRF(ctx context.Context, session *Session) error {
	session.CSRFToken = ""
	return m.store.Set(ctx, session)
}

// CheckCSRF reports whether the submitted token equals the session's current
// token. The comparison is constant-time.
func (m *Manager) CheckCSRF(session *Session, submitted string) bool {
	if session.CSRFToken == "" || submitted == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(submitted)) == 1
}

// SetFlashLink stashes a link for one-time display on the next render.
func (m *Manager) SetFlashLink(ctx context.Context, session *Session, link string) error {
	session.FlashLink = link
	return m.store.Set(ctx, session)
}

// TakeFlashLink returns the stashed link and clears it.
func (m *Manager) TakeFlashLink(ctx context.Context, session *Session) (string, error) {
	link := session.FlashLink
	if link == "" {
		return "", nil
	}

	session.FlashLink = ""
	if err := m.store.Set(ctx, session); err != nil {
		return "", err
	}

	return link, nil
}

// Destroy removes the session from the store and expires the cookie.
func (m *Manager) Destroy(response http.ResponseWriter, request *http.Request, session *Session) error {
	if err := m.store.Destroy(request.Context(), session.ID); err != nil {
		return err
	}

	http.SetCookie(response, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	return nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf)[:length], nil
}
