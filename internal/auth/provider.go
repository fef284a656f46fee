package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNotSignedIn is returned when no stored session exists for an account.
var ErrNotSignedIn = errors.New("not signed in")

// TokenProvider produces bearer tokens for remote API calls.
type TokenProvider interface {
	// AccessToken returns a valid bearer token, refreshing if needed.
	// Fails with ErrNotSignedIn when no session exists.
	AccessToken(ctx context.Context) (string, error)
}

// OAuthProvider is a TokenProvider backed by an oauth2 refresh flow with
// tokens persisted in the system keyring.
type OAuthProvider struct {
	mu      sync.Mutex
	account string
	config  *oauth2.Config
	storage *TokenStorage
	current *oauth2.Token
}

// NewOAuthProvider creates a provider for one account.
func NewOAuthProvider(account string, config *oauth2.Config, storage *TokenStorage) *OAuthProvider {
	return &OAuthProvider{
		account: account,
		config:  config,
		storage: storage,
	}
}

// AccessToken returns a valid bearer token, refreshing and re-persisting it
// when the stored token has expired.
func (p *OAuthProvider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		token, err := p.storage.Load(p.account)
		if err != nil {
			return "", ErrNotSignedIn
		}
		p.current = token
	}

	if p.current.Valid() {
		return p.current.AccessToken, nil
	}

	source := p.config.TokenSource(ctx, p.current)
	refreshed, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	if refreshed.AccessToken != p.current.AccessToken {
		p.current = refreshed
		if err := p.storage.Save(p.account, refreshed); err != nil {
			return "", fmt.Errorf("failed to persist refreshed token: %w", err)
		}
	}

	return p.current.AccessToken, nil
}

// SignIn stores a freshly obtained token for the account.
func (p *OAuthProvider) SignIn(token *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = token
	return p.storage.Save(p.account, token)
}

// SignOut removes the stored session.
func (p *OAuthProvider) SignOut() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	return p.storage.Delete(p.account)
}

// StaticTokenProvider returns a fixed token. Used in tests and for
// pre-provisioned service credentials.
type StaticTokenProvider struct {
	Token string
}

// AccessToken returns the fixed token, or ErrNotSignedIn when empty.
func (p *StaticTokenProvider) AccessToken(context.Context) (string, error) {
	if p.Token == "" {
		return "", ErrNotSignedIn
	}
	return p.Token, nil
}
