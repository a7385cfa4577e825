// Package apikey authenticates requests carrying a static API key.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

// Name is the registry name of the strategy
const Name = "apikey"

// Option keys understood by the strategy
const (
	// OptionHeader is the request header carrying the key
	OptionHeader = "header"

	// OptionQueryParam, if set, is a query parameter also accepted as the key
	OptionQueryParam = "queryParam"

	// OptionScopes lists scopes the key must hold
	OptionScopes = "scopes"
)

// DefaultHeader is the header read when no override is configured
const DefaultHeader = "X-API-Key"

// Key is a registered API key. Only the SHA-256 digest of the secret is stored.
type Key struct {
	ID      string   `yaml:"id"`
	Subject string   `yaml:"subject"`
	Name    string   `yaml:"name"`
	Hash    string   `yaml:"sha256"`
	Scopes  []string `yaml:"scopes"`

	digest []byte
}

type keysFile struct {
	Keys []Key `yaml:"keys"`
}

// LoadKeys reads a YAML key file of the form
//
//	keys:
//	  - id: ci
//	    subject: svc-ci
//	    sha256: 9f86d08...
//	    scopes: [deploy]
func LoadKeys(path string) ([]Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API key file: %w", err)
	}
	var f keysFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse API key file: %w", err)
	}
	return f.Keys, nil
}

// HashKey returns the hex digest stored for a secret key
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Config holds the strategy defaults
type Config struct {
	Header     string
	QueryParam string
}

// Strategy implements auth.Strategy for API keys
type Strategy struct {
	keys     []Key
	defaults auth.Options
	logger   *logging.Logger
}

// New creates an API key strategy
func New(keys []Key, config Config, logger *logging.Logger) (*Strategy, error) {
	parsed := make([]Key, 0, len(keys))
	for _, k := range keys {
		digest, err := hex.DecodeString(k.Hash)
		if err != nil || len(digest) != sha256.Size {
			return nil, fmt.Errorf("API key %q has an invalid sha256 digest", k.ID)
		}
		if k.Subject == "" {
			k.Subject = k.ID
		}
		if k.Subject == "" {
			return nil, fmt.Errorf("API key has neither id nor subject")
		}
		k.digest = digest
		parsed = append(parsed, k)
	}

	header := config.Header
	if header == "" {
		header = DefaultHeader
	}
	defaults := auth.Options{OptionHeader: header}
	if config.QueryParam != "" {
		defaults[OptionQueryParam] = config.QueryParam
	}

	return &Strategy{
		keys:     parsed,
		defaults: defaults,
		logger:   logger.WithModule("auth.apikey"),
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
	presented := r.Header.Get(opts.String(OptionHeader, DefaultHeader))
	if presented == "" {
		if param := opts.String(OptionQueryParam, ""); param != "" {
			presented = r.URL.Query().Get(param)
		}
	}
	if presented == "" {
		return nil, nil
	}

	logger := logging.FromContextOr(ctx, s.logger)

	key := s.lookup(presented)
	if key == nil {
		logger.Debug("Unknown API key", "key", logging.MaskedSecret(presented))
		return nil, auth.InvalidCredentials("Invalid API key", nil)
	}

	for _, scope := range opts.StringSlice(OptionScopes) {
		if !slices.Contains(key.Scopes, scope) {
			logger.Debug("API key lacks scope", "key_id", key.ID, "scope", scope)
			return nil, auth.InvalidCredentials("API key is missing a required scope", nil)
		}
	}

	return &auth.Identity{
		Subject:  key.Subject,
		Provider: Name,
		Name:     key.Name,
		Attributes: map[string]interface{}{
			"key_id": key.ID,
			"scopes": key.Scopes,
		},
	}, nil
}

// lookup compares the presented digest against every key in constant time
func (s *Strategy) lookup(presented string) *Key {
	sum := sha256.Sum256([]byte(presented))
	var found *Key
	for i := range s.keys {
		if subtle.ConstantTimeCompare(sum[:], s.keys[i].digest) == 1 {
			found = &s.keys[i]
		}
	}
	return found
}

var _ auth.Strategy = (*Strategy)(nil)
