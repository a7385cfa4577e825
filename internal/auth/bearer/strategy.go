// Package bearer authenticates OIDC ID tokens presented as bearer tokens.
package bearer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/exp/slices"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

// Name is the registry name of the strategy
const Name = "bearer"

// OptionClientID is the client ID the token must be issued to
const OptionClientID = "clientId"

// Config holds Bearer strategy configuration
type Config struct {
	// Issuer is the token issuer URL
	Issuer string

	// ClientID is the client ID for token validation
	ClientID string
}

// TokenVerifier verifies a raw ID token
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Strategy implements auth.Strategy for OIDC bearer tokens
type Strategy struct {
	verifier TokenVerifier
	defaults auth.Options
	logger   *logging.Logger
}

// audiences helps unmarshall the audience claim which can be either a string or an array
type audiences []string

func (a *audiences) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = []string{single}
		return nil
	}

	var multiple []string
	if err := json.Unmarshal(data, &multiple); err == nil {
		*a = multiple
		return nil
	}

	return fmt.Errorf("invalid audience claim format")
}

// New discovers the issuer and creates a Bearer strategy
func New(ctx context.Context, config Config, logger *logging.Logger) (*Strategy, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("bearer strategy requires an issuer")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("bearer strategy requires a client ID")
	}

	logger.Debug("Initializing OIDC provider for Bearer authentication", "issuer", config.Issuer)
	provider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC provider for Bearer: %w", err)
	}

	// Audience is checked against azp as well, so the library check is skipped
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return NewWithVerifier(verifier, config.ClientID, logger), nil
}

// NewWithVerifier creates a Bearer strategy around an existing verifier
func NewWithVerifier(verifier TokenVerifier, clientID string, logger *logging.Logger) *Strategy {
	return &Strategy{
		verifier: verifier,
		defaults: auth.Options{OptionClientID: clientID},
		logger:   logger.WithModule("auth.bearer"),
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

// Authenticate implements auth.Strategy. A presented token that fails
// verification is a rejection; the next strategy is not tried.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request, opts auth.Options) (*auth.Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, nil
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenStr == "" {
		return nil, nil
	}

	logger := logging.FromContextOr(ctx, s.logger)
	logger.Debug("Bearer token found, verifying")

	idToken, err := s.verifier.Verify(ctx, tokenStr)
	if err != nil {
		logger.Info("Bearer token verification failed", logging.Err(err))
		return nil, auth.InvalidCredentials("Invalid Bearer token", err)
	}

	var claims struct {
		Subject string    `json:"sub"`
		Azp     string    `json:"azp,omitempty"`
		Aud     audiences `json:"aud,omitempty"`
		Name    string    `json:"name,omitempty"`
		Email   string    `json:"email,omitempty"`
		Scope   string    `json:"scope,omitempty"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, auth.InvalidCredentials("Failed to parse token claims", err)
	}

	clientID := opts.String(OptionClientID, "")
	if clientID != "" && claims.Azp != clientID && !slices.Contains(claims.Aud, clientID) {
		logger.Info("Bearer token audience mismatch",
			"expectedClientID", clientID,
			"aud", claims.Aud,
			"azp", claims.Azp,
		)
		return nil, auth.InvalidCredentials("Invalid Bearer token audience", nil)
	}

	return &auth.Identity{
		Subject:  claims.Subject,
		Provider: Name,
		Name:     claims.Name,
		Email:    claims.Email,
		Attributes: map[string]interface{}{
			"issuer": idToken.Issuer,
			"scopes": strings.Fields(claims.Scope),
		},
	}, nil
}

// Challenge implements auth.Challenger
func (s *Strategy) Challenge(auth.Options) string {
	return `Bearer error="invalid_token"`
}

var (
	_ auth.Strategy   = (*Strategy)(nil)
	_ auth.Challenger = (*Strategy)(nil)
)
