package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/calwidget/internal/domain"
	"github.com/sumire/calwidget/internal/service"
)

// Authenticator is the auth service consumed by the handlers.
type Authenticator interface {
	CredentialLoader
	BeginAuthorization() (service.AuthRequest, error)
	CompleteAuthorization(ctx context.Context, expectedState string, params service.CallbackParams) (domain.Credential, error)
}

// AuthHandler handles the OAuth authorization endpoints.
type AuthHandler struct {
	auth     Authenticator
	sessions *SessionManager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth Authenticator, sessions *SessionManager) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

// Authorize redirects the user to Google's OAuth consent page.
func (h *AuthHandler) Authorize(c echo.Context) error {
	req, err := h.auth.BeginAuthorization()
	if err != nil {
		return err
	}
	if err := h.sessions.SetState(c, req.State); err != nil {
		return err
	}
	return c.Redirect(http.StatusTemporaryRedirect, req.URL)
}

// Callback handles the OAuth redirect from Google.
func (h *AuthHandler) Callback(c echo.Context) error {
	expected := h.sessions.State(c)
	h.sessions.Clear(c)

	q := c.QueryParams()
	_, err := h.auth.CompleteAuthorization(c.Request().Context(), expected, service.CallbackParams{
		State: q.Get("state"),
		Code:  q.Get("code"),
		Error: q.Get("error"),
	})
	if err != nil {
		slog.Warn("authorization callback failed", "error", err)
		return err
	}

	return c.Redirect(http.StatusFound, EventsPath)
}
