// Package oidc implements browser sign-in with an OpenID Connect provider.
//
// Handlers run the authorization code flow with PKCE and store the result in
// an encrypted session cookie. The session strategy turns that cookie into an
// identity for operations that accept it.
package oidc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

// Name is the registry name of the session strategy
const Name = "oidc"

// OptionLoginPath is advertised to clients that need to sign in
const OptionLoginPath = "loginPath"

// Strategy implements auth.Strategy over the session cookie
type Strategy struct {
	codec    *SessionCodec
	defaults auth.Options
	logger   *logging.Logger
	now      func() time.Time
}

// NewStrategy creates the session strategy
func NewStrategy(codec *SessionCodec, loginPath string, logger *logging.Logger) *Strategy {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Strategy{
		codec:    codec,
		defaults: auth.Options{OptionLoginPath: loginPath},
		logger:   logger.WithModule("auth.oidc"),
		now:      time.Now,
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

// Authenticate implements auth.Strategy. A missing, unreadable or expired
// session yields no identity so that the client can sign in again.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request, _ auth.Options) (*auth.Identity, error) {
	logger := logging.FromContextOr(ctx, s.logger)

	session := refreshedSession(r.Context())
	if session == nil {
		var err error
		session, err = s.codec.Read(r)
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		if err != nil {
			logger.Debug("Session cookie invalid", logging.Err(err))
			return nil, nil
		}
	}

	now := s.now()
	if !session.RefreshTokenExpiry.IsZero() && now.After(session.RefreshTokenExpiry) {
		logger.Debug("Session ended", "subject", session.Subject)
		return nil, nil
	}
	// Renewal happens in Flow.RefreshMiddleware before the strategy runs
	if !session.Expiry.IsZero() && now.After(session.Expiry) {
		logger.Debug("Session expired", "subject", session.Subject)
		return nil, nil
	}

	return &auth.Identity{
		Subject:  session.Subject,
		Provider: Name,
		Name:     session.Name,
		Email:    session.Email,
		Attributes: map[string]interface{}{
			"session_expiry": session.Expiry,
		},
	}, nil
}

// Challenge implements auth.Challenger
func (s *Strategy) Challenge(opts auth.Options) string {
	return `Cookie realm="authflow", login="` + opts.String(OptionLoginPath, DefaultLoginPath) + `"`
}

var (
	_ auth.Strategy   = (*Strategy)(nil)
	_ auth.Challenger = (*Strategy)(nil)
)
