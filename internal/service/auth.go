package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/sumire/calwidget/internal/domain"
)

// CredentialStore defines the credential persistence consumed by AuthService.
type CredentialStore interface {
	Load(ctx context.Context) (*domain.Credential, error)
	Save(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context) error
}

// OAuthConfig holds the Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	// SecretsFile is a client-secrets JSON downloaded from the Google console.
	// When set it takes precedence over ClientID and ClientSecret.
	SecretsFile string
	RedirectURL string
}

// NewGoogleOAuthConfig builds the oauth2 configuration for the calendar scope.
func NewGoogleOAuthConfig(cfg OAuthConfig) (*oauth2.Config, error) {
	if cfg.SecretsFile != "" {
		data, err := os.ReadFile(cfg.SecretsFile)
		if err != nil {
			return nil, fmt.Errorf("read client secrets: %w", err)
		}
		conf, err := googleOAuth.ConfigFromJSON(data, calendar.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("parse client secrets: %w", err)
		}
		conf.RedirectURL = cfg.RedirectURL
		return conf, nil
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     googleOAuth.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
		RedirectURL:  cfg.RedirectURL,
	}, nil
}

// AuthRequest is the start of an authorization: the consent URL and the
// anti-forgery state the caller must keep in its session.
type AuthRequest struct {
	URL   string
	State string
}

// CallbackParams are the query parameters of the OAuth redirect.
type CallbackParams struct {
	State string
	Code  string
	Error string
}

// AuthService owns the credential lifecycle.
type AuthService struct {
	oauth   *oauth2.Config
	store   CredentialStore
	timeout time.Duration
	now     func() time.Time

	// mu serializes read-check-refresh-persist.
	mu sync.Mutex
}

// NewAuthService creates a new AuthService. timeout bounds every call to the
// token endpoint.
func NewAuthService(store CredentialStore, oauth *oauth2.Config, timeout time.Duration) *AuthService {
	return &AuthService{
		oauth:   oauth,
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

// BeginAuthorization returns the provider consent URL and a fresh state token.
func (s *AuthService) BeginAuthorization() (AuthRequest, error) {
	state, err := generateState()
	if err != nil {
		return AuthRequest{}, fmt.Errorf("generate state: %w", err)
	}

	url := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	return AuthRequest{URL: url, State: state}, nil
}

// CompleteAuthorization verifies the callback against expectedState, exchanges
// the code and persists the resulting credential.
func (s *AuthService) CompleteAuthorization(ctx context.Context, expectedState string, params CallbackParams) (domain.Credential, error) {
	if expectedState == "" || params.State != expectedState {
		return domain.Credential{}, domain.ErrStateMismatch
	}
	if params.Error != "" {
		return domain.Credential{}, fmt.Errorf("%w: provider returned %q", domain.ErrExchangeFailed, params.Error)
	}
	if params.Code == "" {
		return domain.Credential{}, fmt.Errorf("%w: missing code parameter", domain.ErrExchangeFailed)
	}

	ctx, cancel := s.tokenContext(ctx)
	defer cancel()

	token, err := s.oauth.Exchange(ctx, params.Code)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrExchangeFailed, err)
	}

	cred := credentialFromToken(token, nil)
	if err := s.store.Save(ctx, cred); err != nil {
		return domain.Credential{}, fmt.Errorf("persist credential: %w", err)
	}

	slog.Info("authorization completed", "credential", cred)
	return cred, nil
}

// LoadCredential returns the stored credential, or nil when none is stored or
// the stored record cannot be decoded.
func (s *AuthService) LoadCredential(ctx context.Context) (*domain.Credential, error) {
	cred, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialCorrupt) {
			slog.Warn("ignoring unreadable credential", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

// Current returns the stored credential or ErrNeedsReauth when there is none.
func (s *AuthService) Current(ctx context.Context) (domain.Credential, error) {
	cred, err := s.LoadCredential(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if cred == nil {
		return domain.Credential{}, domain.ErrNeedsReauth
	}
	return *cred, nil
}

// EnsureValid returns a usable credential. An expired credential is refreshed
// and persisted when it carries a refresh token; otherwise ErrNeedsReauth is
// returned without contacting the provider.
func (s *AuthService) EnsureValid(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	if !cred.Expired(s.now()) {
		return cred, nil
	}
	if !cred.CanRefresh() {
		return domain.Credential{}, fmt.Errorf("%w: credential expired without refresh token", domain.ErrNeedsReauth)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source := cred
	stored, err := s.store.Load(ctx)
	switch {
	case err != nil:
		slog.Warn("reload credential before refresh", "error", err)
	case stored != nil && !stored.Expired(s.now()):
		return *stored, nil
	case stored != nil && stored.CanRefresh():
		source = *stored
	}

	refreshed, err := s.refresh(ctx, source)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				slog.Error("clear rejected credential", "error", clearErr)
			}
		}
		slog.Warn("credential refresh failed", "error", err)
		return domain.Credential{}, fmt.Errorf("%w: refresh failed: %v", domain.ErrNeedsReauth, err)
	}

	if err := s.store.Save(ctx, refreshed); err != nil {
		return domain.Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}

	slog.Info("credential refreshed", "credential", refreshed)
	return refreshed, nil
}

func (s *AuthService) refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	ctx, cancel := s.tokenContext(ctx)
	defer cancel()

	// No access token forces the token source to hit the token endpoint.
	token, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return domain.Credential{}, err
	}
	return credentialFromToken(token, cred.GrantedScopes), nil
}

func (s *AuthService) tokenContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: s.timeout})
	return context.WithTimeout(ctx, s.timeout)
}

func credentialFromToken(token *oauth2.Token, previousScopes []string) domain.Credential {
	scopes := previousScopes
	if granted, ok := token.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}
	return domain.Credential{
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		TokenType:     token.TokenType,
		Expiry:        token.Expiry,
		GrantedScopes: scopes,
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
