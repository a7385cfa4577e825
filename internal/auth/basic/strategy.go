// Package basic authenticates HTTP Basic credentials against a user store.
package basic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slices"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
	"authflow/internal/userstore"
)

// Name is the registry name of the strategy
const Name = "basic"

// Option keys understood by the strategy
const (
	// OptionRealm is the realm advertised in the challenge
	OptionRealm = "realm"

	// OptionRoles restricts the operation to users holding one of the roles
	OptionRoles = "roles"
)

// dummyHash is compared against when the user does not exist so that unknown
// and known usernames take similar time
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3aR/3P1yx1Q0nNpmLlqUKaC")

// Config holds the strategy defaults
type Config struct {
	Realm string
}

// Strategy implements auth.Strategy for HTTP Basic authentication
type Strategy struct {
	store    userstore.Store
	defaults auth.Options
	logger   *logging.Logger
}

// New creates a basic strategy
func New(store userstore.Store, config Config, logger *logging.Logger) *Strategy {
	realm := config.Realm
	if realm == "" {
		realm = "authflow"
	}
	return &Strategy{
		store:    store,
		defaults: auth.Options{OptionRealm: realm},
		logger:   logger.WithModule("auth.basic"),
	}
}

// Name implements auth.Strategy
func (s *Strategy) Name() string {
	return Name
}

// DefaultOptions implements auth.Strategy
func (s *Strategy) DefaultOptions() auth.Options {
	return s.defaults
}

// Authenticate implements auth.Strategy
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request, opts auth.Options) (*auth.Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}

	logger := logging.FromContextOr(ctx, s.logger)

	user, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, userstore.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		logger.Debug("Unknown user", "username", username)
		return nil, auth.InvalidCredentials("Invalid username or password", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("basic authentication: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Debug("Password mismatch", "username", username)
		return nil, auth.InvalidCredentials("Invalid username or password", nil)
	}

	if roles := opts.StringSlice(OptionRoles); len(roles) > 0 {
		if !slices.ContainsFunc(user.Roles, func(role string) bool { return slices.Contains(roles, role) }) {
			logger.Debug("User lacks required role", "username", username, "roles", roles)
			return nil, auth.AccessDenied("User is not allowed to perform this operation")
		}
	}

	return &auth.Identity{
		Subject:  user.ID,
		Provider: Name,
		Name:     user.Name,
		Email:    user.Email,
		Attributes: map[string]interface{}{
			"username": user.Username,
			"roles":    user.Roles,
		},
	}, nil
}

// Challenge implements auth.Challenger
func (s *Strategy) Challenge(opts auth.Options) string {
	return fmt.Sprintf("Basic realm=%q", opts.String(OptionRealm, "authflow"))
}

var (
	_ auth.Strategy   = (*Strategy)(nil)
	_ auth.Challenger = (*Strategy)(nil)
)
