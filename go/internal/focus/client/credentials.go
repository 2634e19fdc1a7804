package client

import (
	"errors"
	"sync"
)

// ErrNoCredential is returned when no usable credential is stored
var ErrNoCredential = errors.New("no credential available")

// CredentialSource supplies the opaque bearer token presented when a room
// connection is established. Invalidate is called when the coordinator rejects it.
type CredentialSource interface {
	Token() (string, error)
	Invalidate()
}

// TokenStore is an in-memory CredentialSource
type TokenStore struct {
	mu    sync.Mutex
	token string
}

func NewTokenStore(token string) *TokenStore {
	return &TokenStore{token: token}
}

func (s *TokenStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// Set replaces the stored token, e.g. after a fresh login
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *TokenStore) Invalidate() {
	s.Set("")
}
