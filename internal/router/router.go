// Package router composes the HTTP surface of the shortener: the public
// redirect path and the session-guarded, CSRF-checked form handlers.
package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vkarpenko/shrturl/internal/allocator"
	"github.com/vkarpenko/shrturl/internal/auth"
	"github.com/vkarpenko/shrturl/internal/logger"
	"github.com/vkarpenko/shrturl/internal/models"
	"github.com/vkarpenko/shrturl/internal/service"
	"github.com/vkarpenko/shrturl/internal/session"
)

type urlShortener interface {
	RegisterUser(ctx context.Context, request models.RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, request models.LoginRequest) (*models.User, error)
	ShortenURL(ctx context.Context, target string, ownerID int64) (string, error)
	DeleteUserURL(ctx context.Context, slug string, ownerID int64) (bool, error)
	AsUserURLs(mappings []models.URLMapping) models.UserUrls
	ResolveSlug(ctx context.Context, slug string) (string, error)
	Ping(ctx context.Context) error
}

const (
	usernameTakenMessage  = "This username has already been taken."
	invalidFieldsMessage  = "The username must be at least 5 characters and the password at least 8 characters long."
	invalidTargetMessage  = "That does not look like a valid URL."
	wrongCredentialsRoute = "/login"
)

// requestTimeout bounds every handler, and with it every storage call made
// on the request context.
const requestTimeout = 30 * time.Second

// renderContext carries everything a page render needs. It is assembled only
// after the session's CSRF token has been rotated, so the rendered page and
// the session always agree on the token value.
type renderContext struct {
	Username  string
	CSRFToken string
	Error     string
	Link      string
	URLs      models.UserUrls
}

// Router holds the handler dependencies.
type Router struct {
	service  urlShortener
	guard    *auth.Guard
	sessions *session.Manager
}

// New wires the routes and returns the ready http.Handler.
func New(svc urlShortener, guard *auth.Guard, sessions *session.Manager) http.Handler {
	r := &Router{
		service:  svc,
		guard:    guard,
		sessions: sessions,
	}

	mux := chi.NewRouter()
	mux.Use(logger.WithLoggingHTTPMiddleware)
	mux.Use(middleware.Timeout(requestTimeout))

	mux.With(guard.RedirectAuthenticated).Get(`/register`, r.GetRegister)
	mux.With(guard.VerifyCSRF).Post(`/register`, r.PostRegister)
	mux.With(guard.RedirectAuthenticated).Get(`/login`, r.GetLogin)
	mux.With(guard.VerifyCSRF).Post(`/login`, r.PostLogin)
	mux.With(guard.RequireAuthenticated, guard.VerifyCSRF).Post(`/logout`, r.PostLogout)

	mux.With(guard.RequireAuthenticated).Get(`/`, r.GetIndex)
	mux.With(guard.RequireAuthenticated, guard.VerifyCSRF).Post(`/`, r.PostCreateURL)
	mux.With(guard.RequireAuthenticated).Get(`/my-urls`, r.GetMyURLs)

	mux.Get(`/ping`, r.GetPing)
	mux.Get(`/{slug}`, r.GetRedirect)
	mux.With(guard.RequireAuthenticated, guard.VerifyCSRF).Post(`/{slug}`, r.PostDeleteURL)

	return mux
}

// GetRegister issues a fresh CSRF token and renders the registration form.
func (r *Router) GetRegister(response http.ResponseWriter, request *http.Request) {
	r.renderFormPage(response, request, "register", "")
}

// PostRegister creates the account and sends the user to the login page.
// Validation and uniqueness failures re-render the form with a field error
// and a freshly rotated token; a consumed token is never reused.
func (r *Router) PostRegister(response http.ResponseWriter, request *http.Request) {
	sess, ok := auth.SessionFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	_, err := r.service.RegisterUser(request.Context(), models.RegisterRequest{
		Username: request.PostFormValue("username"),
		Password: request.PostFormValue("password"),
	})
	switch {
	case err == nil:
		http.Redirect(response, request, "/login", http.StatusFound)

	case errors.Is(err, service.ErrUsernameTaken):
		r.rerenderFormPage(response, request, sess, "register", usernameTakenMessage)

	case errors.Is(err, service.ErrValidation):
		r.rerenderFormPage(response, request, sess, "register", invalidFieldsMessage)

	default:
		logger.Log.Debugln("Error calling the `r.service.RegisterUser()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
	}
}

// GetLogin issues a fresh CSRF token and renders the login form.
func (r *Router) GetLogin(response http.ResponseWriter, request *http.Request) {
	r.renderFormPage(response, request, "login", "")
}

// PostLogin verifies the credentials and establishes the identity cookie.
// Any credential failure sends the caller back to /login with no session
// established and no hint about the cause.
func (r *Router) PostLogin(response http.ResponseWriter, request *http.Request) {
	usr, err := r.service.Authenticate(request.Context(), models.LoginRequest{
		Username: request.PostFormValue("username"),
		Password: request.PostFormValue("password"),
	})
	if err != nil {
		if errors.Is(err, service.ErrWrongCredentials) {
			http.Redirect(response, request, wrongCredentialsRoute, http.StatusFound)
			return
		}
		logger.Log.Debugln("Error calling the `r.service.Authenticate()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := r.guard.SetAuthCookie(response, usr); err != nil {
		logger.Log.Debugln("Error calling the `r.guard.SetAuthCookie()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.Redirect(response, request, "/", http.StatusFound)
}

// PostLogout tears down the session and identity cookies.
func (r *Router) PostLogout(response http.ResponseWriter, request *http.Request) {
	sess, ok := auth.SessionFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := r.sessions.Destroy(response, request, sess); err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.Destroy()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	r.guard.ClearAuthCookie(response)
	http.Redirect(response, request, "/login", http.StatusFound)
}

// GetIndex renders the shorten form, showing the freshly created link once.
func (r *Router) GetIndex(response http.ResponseWriter, request *http.Request) {
	identity, ok := auth.IdentityFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	sess, err := r.sessions.Ensure(response, request)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.Ensure()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	link, err := r.sessions.TakeFlashLink(request.Context(), sess)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.TakeFlashLink()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	token, err := r.sessions.RotateCSRF(request.Context(), sess)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.RotateCSRF()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	r.render(response, "index", renderContext{
		Username:  identity.User.Username,
		CSRFToken: token,
		Link:      link,
	})
}

// PostCreateURL allocates a slug for the submitted target and redirects back
// to the index, where the new link is shown once.
func (r *Router) PostCreateURL(response http.ResponseWriter, request *http.Request) {
	identity, identityFound := auth.IdentityFromContext(request.Context())
	sess, sessionFound := auth.SessionFromContext(request.Context())
	if !identityFound || !sessionFound {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	shortURL, err := r.service.ShortenURL(
		request.Context(),
		request.PostFormValue("url"),
		identity.User.ID,
	)
	if err != nil {
		if errors.Is(err, allocator.ErrInvalidURL) {
			token, rotateErr := r.sessions.RotateCSRF(request.Context(), sess)
			if rotateErr != nil {
				response.WriteHeader(http.StatusInternalServerError)
				return
			}
			r.render(response, "index", renderContext{
				Username:  identity.User.Username,
				CSRFToken: token,
				Error:     invalidTargetMessage,
			})
			return
		}
		logger.Log.Debugln("Error calling the `r.service.ShortenURL()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := r.sessions.SetFlashLink(request.Context(), sess, shortURL); err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.SetFlashLink()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.Redirect(response, request, "/", http.StatusFound)
}

// GetMyURLs renders the guard's fresh owned-URL snapshot, newest first.
func (r *Router) GetMyURLs(response http.ResponseWriter, request *http.Request) {
	identity, ok := auth.IdentityFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	sess, err := r.sessions.Ensure(response, request)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.Ensure()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	token, err := r.sessions.RotateCSRF(request.Context(), sess)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.RotateCSRF()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	r.render(response, "myurls", renderContext{
		Username:  identity.User.Username,
		CSRFToken: token,
		URLs:      r.service.AsUserURLs(identity.OwnedURLs),
	})
}

// PostDeleteURL removes an owned mapping. A non-owner (or unknown slug) gets
// 401 and no record is touched.
func (r *Router) PostDeleteURL(response http.ResponseWriter, request *http.Request) {
	identity, ok := auth.IdentityFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	slug := chi.URLParam(request, "slug")

	deleted, err := r.service.DeleteUserURL(request.Context(), slug, identity.User.ID)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.service.DeleteUserURL()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !deleted {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	http.Redirect(response, request, "/my-urls", http.StatusFound)
}

// GetRedirect is the public resolution path: no session, no CSRF, a single
// storage lookup.
func (r *Router) GetRedirect(response http.ResponseWriter, request *http.Request) {
	slug := chi.URLParam(request, "slug")

	target, err := r.service.ResolveSlug(request.Context(), slug)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.WriteHeader(http.StatusNotFound)
			return
		}
		logger.Log.Debugln("Error calling the `r.service.ResolveSlug()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.Redirect(response, request, target, http.StatusFound)
}

// GetPing reports storage health.
func (r *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := r.service.Ping(request.Context()); err != nil {
		logger.Log.Debugln("Error calling the `r.service.Ping()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// renderFormPage serves a public form page: ensure the session, rotate the
// CSRF token, then render.
func (r *Router) renderFormPage(
	response http.ResponseWriter,
	request *http.Request,
	page string,
	errorMessage string,
) {
	sess, err := r.sessions.Ensure(response, request)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.Ensure()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	r.rerenderFormPage(response, request, sess, page, errorMessage)
}

// rerenderFormPage rotates the CSRF token of an existing session and renders
// the form page with an optional field error.
func (r *Router) rerenderFormPage(
	response http.ResponseWriter,
	request *http.Request,
	sess *session.Session,
	page string,
	errorMessage string,
) {
	token, err := r.sessions.RotateCSRF(request.Context(), sess)
	if err != nil {
		logger.Log.Debugln("Error calling the `r.sessions.RotateCSRF()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	r.render(response, page, renderContext{
		CSRFToken: token,
		Error:     errorMessage,
	})
}

func (r *Router) render(response http.ResponseWriter, page string, renderCtx renderContext) {
	response.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(response, page, renderCtx); err != nil {
		logger.Log.Debugln("Error rendering the page template: ", zap.Error(err))
	}
}
