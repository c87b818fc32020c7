package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/observability"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/services/session"
	"github.com/upb/identity-gateway/utils"
)

// SessionService opens and closes local sessions
type SessionService interface {
	Login(ctx context.Context, username, password string) (*session.Session, error)
	Logout(ctx context.Context, id string)
}

// LoginRequest is the body accepted by POST /login, as JSON or form fields
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

// CookieConfig controls the session and CSRF cookies
type CookieConfig struct {
	Secure bool
}

// AuthHandler handles local username/password login and logout
type AuthHandler struct {
	sessions SessionService
	cookies  CookieConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions SessionService, cookies CookieConfig, logger *zap.Logger, metrics *observability.Metrics) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
		metrics:  metrics,
	}
}

// HandleLogin verifies the credentials and starts a session, ending any
// session the request still carries. The response carries the same body as GET /user.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req LoginRequest
	if utils.IsJSONRequest(r) {
		if err := utils.DecodeJSON(r, &req); err != nil {
			HandleValidationError(w, err, h.logger)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			HandleValidationError(w, err, h.logger)
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	s, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.logger.Warn("login failed",
				zap.String("request_id", requestID),
				zap.String("username", req.Username))
			h.metrics.AuthAttempt("login", observability.OutcomeFailure, "invalid_credentials")
			HandleServiceError(w, services.Wrap(services.ErrInvalidCredentials, err), h.logger)
			return
		}
		HandleServiceError(w, services.Wrap(services.ErrInternal, err), h.logger)
		return
	}

	if old, err := r.Cookie(middleware.SessionCookieName); err == nil && old.Value != "" && old.Value != s.ID {
		h.sessions.Logout(r.Context(), old.Value)
	}

	h.metrics.AuthAttempt("login", observability.OutcomeSuccess, "")
	h.logger.Info("login succeeded",
		zap.String("request_id", requestID),
		zap.String("user", s.Principal.Name))

	http.SetCookie(w, h.sessionCookie(s.ID, 0))
	http.SetCookie(w, h.csrfCookie(s.CSRFToken, 0))
	if err := utils.WriteOK(w, NewUserResponse(s.Principal)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleLogout ends the caller's session, if any, and clears both cookies.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if s := middleware.GetSessionFromContext(r.Context()); s != nil {
		h.sessions.Logout(r.Context(), s.ID)
		h.logger.Info("logout",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("user", s.Principal.Name))
	}

	http.SetCookie(w, h.sessionCookie("", -1))
	http.SetCookie(w, h.csrfCookie("", -1))
	utils.WriteNoContent(w)
}

// sessionCookie is HttpOnly; the session lifetime is enforced server side.
func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// csrfCookie must stay readable by the page script, which echoes it in X-XSRF-TOKEN.
func (h *AuthHandler) csrfCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0)
	}
	return c
}
