package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/starford/monteerly/internal/session"
)

const stateCookie = "monteerly_oauth_state"

// Sessions is the session service used by the auth routes.
type Sessions interface {
	Resolver
	SignUp(ctx context.Context, email, password string) (session.Session, error)
	SignIn(ctx context.Context, email, password string) (session.Session, error)
	SignOut(ctx context.Context, token string) error
	FederatedURL(state string) (string, error)
	SignInFederated(ctx context.Context, code string) (session.Session, error)
}

var _ Sessions = (*session.Service)(nil)

// AuthHandler serves sign-up, sign-in and sign-out.
type AuthHandler struct {
	sessions Sessions
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(sessions Sessions) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// SignUp handles POST /api/auth/signup.
//
//	@Summary		Create a password account and sign in
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CredentialsRequest	true	"Credentials"
//	@Success		201		{object}	session.Session
//	@Failure		401		{object}	errResponse
//	@Router			/auth/signup [post]
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := h.sessions.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// SignIn handles POST /api/auth/signin.
//
//	@Summary		Sign in with email and password
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CredentialsRequest	true	"Credentials"
//	@Success		200		{object}	session.Session
//	@Failure		401		{object}	errResponse
//	@Router			/auth/signin [post]
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SignOut handles POST /api/auth/signout.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/session.
//
//	@Summary		Current identity
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	session.Identity
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// Federated handles GET /api/auth/federated by redirecting to the provider.
func (h *AuthHandler) Federated(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	target, err := h.sessions.FederatedURL(state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/federated",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// FederatedCallback handles GET /api/auth/federated/callback.
func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid state"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/auth/federated", MaxAge: -1})

	sess, err := h.sessions.SignInFederated(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
