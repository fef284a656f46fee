package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const defaultServiceName = "mirrorsync"

// TokenStorage persists oauth2 tokens in the system keyring, one entry per
// account.
type TokenStorage struct {
	serviceName string
}

// NewTokenStorage creates a keyring-backed token store.
func NewTokenStorage() *TokenStorage {
	return &TokenStorage{serviceName: defaultServiceName}
}

// NewTokenStorageWithService creates a token store under a custom keyring
// service name. Tests use this to avoid touching real credentials.
func NewTokenStorageWithService(serviceName string) *TokenStorage {
	return &TokenStorage{serviceName: serviceName}
}

// Save stores a token for the account.
func (s *TokenStorage) Save(account string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(s.serviceName, account, string(data)); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Load retrieves the token for the account.
func (s *TokenStorage) Load(account string) (*oauth2.Token, error) {
	data, err := keyring.Get(s.serviceName, account)
	if err != nil {
		return nil, ErrNotSignedIn
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("stored token is corrupt: %w", err)
	}
	return &token, nil
}

// Delete removes the stored token for the account.
func (s *TokenStorage) Delete(account string) error {
	err := keyring.Delete(s.serviceName, account)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
