// Package jwt authenticates self-issued JSON Web Tokens presented as bearer tokens.
//
// Tokens are verified with either a shared HMAC secret or an RSA public key.
// Issuer, audience and required scopes are options and can be overridden per
// operation.
package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/exp/slices"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

// Name is the registry name of the strategy
const Name = "jwt"

// Option keys understood by the strategy
const (
	OptionIssuer    = "issuer"
	OptionAudience  = "audience"
	OptionScopes    = "scopes"
	OptionUserClaim = "userClaim"
	OptionLeeway    = "leeway"
	OptionRealm     = "realm"
)

// Config holds the verification key and default options
type Config struct {
	// Secret is the HMAC key. Mutually exclusive with PublicKeyPath.
	Secret string

	// PublicKeyPath is a PEM encoded RSA public key
	PublicKeyPath string

	Issuer   string
	Audience string

	// UserClaim is the claim used as subject. Default: "sub".
	UserClaim string

	Leeway time.Duration
}

// Strategy implements auth.Strategy for JWT bearer tokens
type Strategy struct {
	key      interface{}
	methods  []string
	defaults auth.Options
	logger   *logging.Logger
}

// New creates a JWT strategy
func New(config Config, logger *logging.Logger) (*Strategy, error) {
	switch {
	case config.Secret != "" && config.PublicKeyPath != "":
		return nil, fmt.Errorf("JWT strategy accepts either a secret or a public key, not both")
	case config.Secret != "":
		return NewWithKey([]byte(config.Secret), config, logger)
	case config.PublicKeyPath != "":
		data, err := os.ReadFile(config.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key: %w", err)
		}
		key, err := jwtlib.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
		}
		return NewWithKey(key, config, logger)
	default:
		return nil, fmt.Errorf("JWT strategy requires a secret or a public key")
	}
}

// NewWithKey creates a JWT strategy verifying with key, which is either an
// HMAC secret ([]byte) or an *rsa.PublicKey
func NewWithKey(key interface{}, config Config, logger *logging.Logger) (*Strategy, error) {
	var methods []string
	switch key.(type) {
	case []byte:
		methods = []string{"HS256", "HS384", "HS512"}
	case *rsa.PublicKey:
		methods = []string{"RS256", "RS384", "RS512"}
	default:
		return nil, fmt.Errorf("unsupported JWT key type %T", key)
	}

	userClaim := config.UserClaim
	if userClaim == "" {
		userClaim = "sub"
	}
	defaults := auth.Options{OptionUserClaim: userClaim}
	if config.Issuer != "" {
		defaults[OptionIssuer] = config.Issuer
	}
	if config.Audience != "" {
		defaults[OptionAudience] = config.Audience
	}
	if config.Leeway > 0 {
		defaults[OptionLeeway] = config.Leeway
	}

	return &Strategy{
		key:      key,
		methods:  methods,
		defaults: defaults,
		logger:   logger.WithModule("auth.jwt"),
	}, nil
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
	tokenStr, ok := bearerToken(r)
	if !ok {
		return nil, nil
	}

	logger := logging.FromContextOr(ctx, s.logger)

	token, err := jwtlib.Parse(tokenStr, func(*jwtlib.Token) (interface{}, error) {
		return s.key, nil
	}, s.parserOptions(opts)...)
	if err != nil {
		logger.Debug("JWT validation failed", logging.Err(err))
		return nil, auth.InvalidCredentials(invalidTokenMessage(err), err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, auth.InvalidCredentials("Invalid token", nil)
	}

	userClaim := opts.String(OptionUserClaim, "sub")
	subject := claimString(claims, userClaim)
	if subject == "" {
		return nil, auth.InvalidCredentials(fmt.Sprintf("Token is missing the %q claim", userClaim), nil)
	}

	scopes := extractScopes(claims, "scope")
	for _, required := range opts.StringSlice(OptionScopes) {
		if !slices.Contains(scopes, required) {
			logger.Debug("JWT lacks scope", "subject", subject, "scope", required)
			return nil, auth.InvalidCredentials("Token is missing a required scope", nil)
		}
	}

	return &auth.Identity{
		Subject:  subject,
		Provider: Name,
		Name:     claimString(claims, "name"),
		Email:    claimString(claims, "email"),
		Attributes: map[string]interface{}{
			"scopes": scopes,
			"claims": map[string]interface{}(claims),
		},
	}, nil
}

// Challenge implements auth.Challenger
func (s *Strategy) Challenge(opts auth.Options) string {
	return fmt.Sprintf("Bearer realm=%q", opts.String(OptionRealm, "authflow"))
}

func (s *Strategy) parserOptions(opts auth.Options) []jwtlib.ParserOption {
	parserOpts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(s.methods),
		jwtlib.WithExpirationRequired(),
	}
	if issuer := opts.String(OptionIssuer, ""); issuer != "" {
		parserOpts = append(parserOpts, jwtlib.WithIssuer(issuer))
	}
	if audience := opts.String(OptionAudience, ""); audience != "" {
		parserOpts = append(parserOpts, jwtlib.WithAudience(audience))
	}
	if leeway := opts.Duration(OptionLeeway, 0); leeway > 0 {
		parserOpts = append(parserOpts, jwtlib.WithLeeway(leeway))
	}
	return parserOpts
}

// bearerToken extracts the token from an "Authorization: Bearer" header
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func invalidTokenMessage(err error) string {
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return "Token has expired"
	case errors.Is(err, jwtlib.ErrTokenInvalidIssuer):
		return "Token issuer is not accepted"
	case errors.Is(err, jwtlib.ErrTokenInvalidAudience):
		return "Token audience is not accepted"
	default:
		return "Invalid token"
	}
}

// claimString returns a string claim or "" when missing or not a string
func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractScopes reads a space separated string or an array claim
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case string:
		return strings.Fields(val)
	case []interface{}:
		scopes := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}

var (
	_ auth.Strategy   = (*Strategy)(nil)
	_ auth.Challenger = (*Strategy)(nil)
)
