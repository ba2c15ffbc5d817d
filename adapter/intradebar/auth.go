package intradebar

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// earlyRefreshWindow is how far ahead of expiry StartTokenEarlyRefresh
// proactively rotates the token, matching the teacher's earlyRefreshTime
// (adapter/oauth.go).
const earlyRefreshWindow = 2 * time.Minute

// SessionStore persists the OAuth2 token between process restarts. Design
// Note 3 replaces the original's global singleton session storage with this
// interface, injected into the adapter constructor rather than held as a
// package-level variable; the reference implementation below keeps the token
// in memory only.
type SessionStore interface {
	LoadToken(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, token *oauth2.Token) error
}

// MemorySessionStore is the reference SessionStore: a single token guarded by
// a mutex, with no on-disk persistence (spec.md explicitly scopes
// encryption-at-rest session storage out).
type MemorySessionStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// LoadToken returns the stored token, or an error if none has been saved.
func (s *MemorySessionStore) LoadToken(_ context.Context) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, fmt.Errorf("intradebar: no session token stored")
	}
	cp := *s.token
	return &cp, nil
}

// SaveToken replaces the stored token.
func (s *MemorySessionStore) SaveToken(_ context.Context, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.token = &cp
	return nil
}

// AuthClient is the adapter's OAuth2 session manager, the intradebar
// counterpart of the teacher's ports.AuthClient (adapter/interfaces.go),
// narrowed to the methods this adapter actually calls.
type AuthClient struct {
	cfg    Config
	oauth  *oauth2.Config
	store  SessionStore
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	tokenSrc  oauth2.TokenSource
	lastToken *oauth2.Token
}

// NewAuthClient builds an AuthClient from cfg, using store for token
// persistence across restarts.
func NewAuthClient(cfg Config, store SessionStore, logger *zap.SugaredLogger) *AuthClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AuthClient{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"trading"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		store:  store,
		logger: logger,
	}
}

// Login loads a previously stored token (or, in the demo environment when
// none is stored, creates and persists a synthetic 24-hour demo session
// token) and installs the resulting token source. Outside demo, a missing
// stored token is an error.
func (a *AuthClient) Login(ctx context.Context) error {
	token, err := a.store.LoadToken(ctx)
	if err != nil {
		if a.cfg.Environment != "demo" {
			return fmt.Errorf("intradebar: login: %w", err)
		}
		token = &oauth2.Token{AccessToken: "demo-session", Expiry: time.Now().Add(24 * time.Hour)}
		if saveErr := a.store.SaveToken(ctx, token); saveErr != nil {
			return fmt.Errorf("intradebar: persist demo session: %w", saveErr)
		}
	}

	a.mu.Lock()
	a.lastToken = token
	a.tokenSrc = a.oauth.TokenSource(ctx, token)
	a.mu.Unlock()

	a.logger.Infow("intradebar session established", "environment", a.cfg.Environment)
	return nil
}

// IsAuthenticated reports whether a token source has been installed.
func (a *AuthClient) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tokenSrc != nil
}

// GetHTTPClient returns an *http.Client whose transport auto-refreshes the
// OAuth2 token before each request, the same delegation the teacher's
// doRequest relies on (adapter/saxo.go).
func (a *AuthClient) GetHTTPClient(ctx context.Context) (*http.Client, error) {
	a.mu.RLock()
	src := a.tokenSrc
	a.mu.RUnlock()
	if src == nil {
		return nil, fmt.Errorf("intradebar: not authenticated")
	}
	return oauth2.NewClient(ctx, src), nil
}

// GetAccessToken returns the current access token string.
func (a *AuthClient) GetAccessToken() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.tokenSrc == nil {
		return "", fmt.Errorf("intradebar: not authenticated")
	}
	token, err := a.tokenSrc.Token()
	if err != nil {
		return "", fmt.Errorf("intradebar: refresh token: %w", err)
	}
	return token.AccessToken, nil
}

// RefreshToken forces an immediate token refresh and persists the result.
func (a *AuthClient) RefreshToken(ctx context.Context) error {
	a.mu.RLock()
	src := a.tokenSrc
	a.mu.RUnlock()
	if src == nil {
		return fmt.Errorf("intradebar: not authenticated")
	}
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("intradebar: refresh: %w", err)
	}
	if err := a.store.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("intradebar: persist refreshed token: %w", err)
	}
	a.mu.Lock()
	a.lastToken = token
	a.mu.Unlock()
	return nil
}

// StartTokenEarlyRefresh runs until ctx is canceled, proactively refreshing
// the token earlyRefreshWindow before it expires, the same cadence as the
// teacher's StartTokenEarlyRefresh (adapter/oauth.go).
func (a *AuthClient) StartTokenEarlyRefresh(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.mu.RLock()
				token := a.lastToken
				a.mu.RUnlock()
				if token == nil {
					continue
				}
				if time.Until(token.Expiry) > earlyRefreshWindow {
					continue
				}
				if err := a.RefreshToken(ctx); err != nil {
					a.logger.Warnw("early token refresh failed", "error", err)
				}
			}
		}
	}()
}
