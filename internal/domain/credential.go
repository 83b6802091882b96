package domain

import (
	"fmt"
	"log/slog"
	"time"
)

// ExpiryDelta is how early a credential is considered expired, so that a token
// is never sent on a request that would outlive it.
const ExpiryDelta = 10 * time.Second

// Credential is the persisted OAuth token pair for the single user of the
// deployment. It is a secret: its String and LogValue forms redact tokens.
type Credential struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	TokenType     string    `json:"token_type,omitempty"`
	Expiry        time.Time `json:"expiry,omitempty"`
	GrantedScopes []string  `json:"granted_scopes,omitempty"`
}

// Expired reports whether the access token can no longer be used at now.
// A zero expiry never expires.
func (c Credential) Expired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !c.Expiry.After(now.Add(ExpiryDelta))
}

// CanRefresh reports whether a refresh token is available.
func (c Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{expiry=%s refreshable=%t scopes=%v}",
		c.Expiry.Format(time.RFC3339), c.CanRefresh(), c.GrantedScopes)
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("expiry", c.Expiry),
		slog.Bool("refreshable", c.CanRefresh()),
		slog.Any("scopes", c.GrantedScopes),
	)
}
