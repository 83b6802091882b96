package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const sessionCookieName = "calwidget_session"

type sessionClaims struct {
	State string `json:"state"`
	jwt.RegisteredClaims
}

// SessionManager keeps the OAuth state in an HMAC-signed cookie.
type SessionManager struct {
	secret []byte
	secure bool
	ttl    time.Duration
}

// NewSessionManager creates a SessionManager signing with secret. secure marks
// the cookie HTTPS-only.
func NewSessionManager(secret string, secure bool) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		secure: secure,
		ttl:    10 * time.Minute,
	}
}

// SetState stores state in the caller's session.
func (m *SessionManager) SetState(c echo.Context, state string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		State: state,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	c.SetCookie(m.cookie(signed, int(m.ttl.Seconds())))
	return nil
}

// State returns the state stored in the caller's session, or "" when the
// session is absent, expired or not signed by us.
func (m *SessionManager) State(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	var claims sessionClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return ""
	}
	return claims.State
}

// Clear drops the session cookie.
func (m *SessionManager) Clear(c echo.Context) {
	c.SetCookie(m.cookie("", -1))
}

func (m *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}
