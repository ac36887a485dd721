package transport

import (
	"sync"

	optionlib "github.com/sagikazarmark/go-option"

	"github.com/client-auth/transport/pkg/option"
)

// CredentialStore holds the current short-lived access credential.
//
// The credential lives in memory only and is never persisted.
// It is written on login (by the external login flow) and on every refresh
// settlement (by the Client); no other component writes it.
type CredentialStore interface {
	// Set replaces the current credential,
	// effective immediately for all subsequent reads.
	Set(credential option.Option[string])

	// Get returns the current credential without blocking.
	Get() option.Option[string]
}

// InMemoryCredentialStore is a process-wide, in-memory CredentialStore.
type InMemoryCredentialStore struct {
	credential option.Option[string]

	initOnce sync.Once
	mu       sync.RWMutex
}

func (s *InMemoryCredentialStore) init() {
	s.initOnce.Do(func() {
		if s.credential == nil {
			s.credential = optionlib.None[string]()
		}
	})
}

// Set implements the CredentialStore interface.
func (s *InMemoryCredentialStore) Set(credential option.Option[string]) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	if credential == nil {
		credential = optionlib.None[string]()
	}

	s.credential = credential
}

// Get implements the CredentialStore interface.
func (s *InMemoryCredentialStore) Get() option.Option[string] {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.credential
}
