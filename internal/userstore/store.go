// Package userstore provides the user records checked by password strategies.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no user matches the lookup
var ErrNotFound = errors.New("user not found")

// User is a stored principal with a bcrypt password hash
type User struct {
	ID           string   `yaml:"id" db:"id"`
	Username     string   `yaml:"username" db:"username"`
	PasswordHash string   `yaml:"password_hash" db:"password_hash"`
	Name         string   `yaml:"name" db:"name"`
	Email        string   `yaml:"email" db:"email"`
	Roles        []string `yaml:"roles" db:"-"`
}

// Store looks users up by their login name
type Store interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// MemoryStore is a Store backed by a map, typically loaded from a YAML file
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore creates a store holding the given users
func NewMemoryStore(users ...User) *MemoryStore {
	s := &MemoryStore{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// LoadFile reads a YAML users file of the form
//
//	users:
//	  - id: u1
//	    username: alice
//	    password_hash: $2a$10$...
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML users data
func Parse(data []byte) (*MemoryStore, error) {
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}

	seen := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("user #%d has no username", i)
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("user %q has no password hash", u.Username)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		seen[u.Username] = true
		if u.ID == "" {
			f.Users[i].ID = u.Username
		}
	}
	return NewMemoryStore(f.Users...), nil
}

// Add inserts or replaces a user
func (s *MemoryStore) Add(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

// FindByUsername implements Store
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// HashPassword returns the bcrypt hash stored in PasswordHash
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
