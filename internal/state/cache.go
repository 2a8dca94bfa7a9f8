// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// package state provides a secure, in-memory cache for transient secrets that
// need to be shared between different parts of the application, such as the
// GENAI API key prompted once per process and the SSH key passphrase.
package state

import "sync"

// PassphraseCache holds the passphrase of the operator's deploy key for the
// lifetime of the process.
var PassphraseCache = &secretMailbox{}

// APIKeyCache holds the GENAI API key between the prompt and the .env upload.
var APIKeyCache = &secretMailbox{}

// secretMailbox is a simple, concurrency-safe, in-memory "mailbox" for
// temporarily storing a secret. It uses a byte slice instead of a string so
// that the sensitive data can be explicitly zeroed out after use.
type secretMailbox struct {
	value []byte
	mu    sync.RWMutex
}

// Set stores a copy of the secret in the cache. It overwrites any existing value.
func (s *secretMailbox) Set(secret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if secret == nil {
		s.value = nil
		return
	}
	// Store a copy so the caller's original slice isn't held by the cache.
	s.value = make([]byte, len(secret))
	copy(s.value, secret)
}

// Get retrieves a copy of the secret from the cache.
// The caller is responsible for zeroing out the returned byte slice after use.
// This method is safe for concurrent use by multiple goroutines.
func (s *secretMailbox) Get() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.value == nil {
		return nil
	}

	// Return a copy so that one caller wiping its copy doesn't affect others.
	secretCopy := make([]byte, len(s.value))
	copy(secretCopy, s.value)
	return secretCopy
}

// Clear securely wipes the secret from the cache memory.
func (s *secretMailbox) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.value {
		s.value[i] = 0
	}
	s.value = nil
}
