package keybackend

import (
	"errors"
	"fmt"
	"sync"
)

// ErrKeyNotFound is returned when an API key is not accepted.
var ErrKeyNotFound = errors.New("api key not found")

// MapSecretStore keeps API keys in memory. Keys can be added and removed
// while the store is in use, so a server can issue and revoke tokens.
type MapSecretStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMapSecretStore creates a map-based secret store from an API key to
// secret mapping. The map is copied.
func NewMapSecretStore(keys map[string]string) *MapSecretStore {
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return &MapSecretStore{keys: copied}
}

// Lookup returns the secret for apiKey.
func (s *MapSecretStore) Lookup(apiKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, found := s.keys[apiKey]
	if !found {
		return "", fmt.Errorf("lookup %q: %w", apiKey, ErrKeyNotFound)
	}
	return secret, nil
}

// Add stores or replaces the secret for apiKey.
func (s *MapSecretStore) Add(apiKey, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[apiKey] = secret
}

// Remove deletes apiKey. It reports whether the key existed.
func (s *MapSecretStore) Remove(apiKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.keys[apiKey]
	delete(s.keys, apiKey)
	return found
}

// Len returns the number of stored keys.
func (s *MapSecretStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
