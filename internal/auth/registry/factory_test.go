package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authflow/internal/auth/apikey"
	"authflow/internal/config"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
	"authflow/internal/tls/tlstest"
	"authflow/internal/userstore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// discoveryServer serves just enough of an OIDC provider for discovery
func discoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRegistryFromConfig_LocalStrategies(t *testing.T) {
	hash, err := userstore.HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.Basic.Enabled = true
	cfg.Auth.Basic.Realm = "widgets"
	cfg.Auth.Basic.UsersFile = writeFile(t, "users.yaml", fmt.Sprintf("users:\n  - username: alice\n    password_hash: %q\n", hash))
	cfg.Auth.APIKey.Enabled = true
	cfg.Auth.APIKey.KeysFile = writeFile(t, "keys.yaml", fmt.Sprintf("keys:\n  - id: ci\n    subject: svc-ci\n    sha256: %s\n", apikey.HashKey("k1")))
	cfg.Auth.JWT.Enabled = true
	cfg.Auth.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.MTLS.Enabled = true

	ca := tlstest.NewCA(t, "clients")

	b, err := NewRegistryFromConfig(context.Background(), cfg, ca.Pool, logging.NewNop(), metrics.NewCollector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, []string{"apikey", "basic", "jwt", "mtls"}, b.Registry.Names())
	assert.Nil(t, b.OIDC)

	strategy, err := b.Registry.Resolve("basic")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "s3cret")
	identity, err := strategy.Authenticate(context.Background(), req, strategy.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, "widgets", strategy.DefaultOptions()["realm"])
}

func TestNewRegistryFromConfig_Discovery(t *testing.T) {
	srv := discoveryServer(t)

	cfg := &config.Config{}
	cfg.Auth.Bearer.Enabled = true
	cfg.Auth.Bearer.Issuer = srv.URL
	cfg.Auth.Bearer.ClientID = "api"
	cfg.Auth.OIDC.Enabled = true
	cfg.Auth.OIDC.Issuer = srv.URL
	cfg.Auth.OIDC.ClientID = "web"
	cfg.Auth.OIDC.ClientSecret = "secret"
	cfg.Auth.OIDC.RedirectURL = "https://app.example.com/auth/callback"
	cfg.Auth.OIDC.CookieSecret = "0123456789abcdef0123456789abcdef"

	b, err := NewRegistryFromConfig(context.Background(), cfg, nil, logging.NewNop(), metrics.NewCollector())
	require.NoError(t, err)

	assert.Equal(t, []string{"bearer", "oidc"}, b.Registry.Names())
	require.NotNil(t, b.OIDC)
	assert.Equal(t, "/auth/callback", b.OIDC.CallbackPath())
}

func TestNewRegistryFromConfig_NothingEnabled(t *testing.T) {
	b, err := NewRegistryFromConfig(context.Background(), &config.Config{}, nil, logging.NewNop(), nil)
	require.NoError(t, err)
	assert.Zero(t, b.Registry.Len())
	assert.NoError(t, b.Close())
}

func TestNewRegistryFromConfig_Errors(t *testing.T) {
	tests := map[string]func(cfg *config.Config){
		"missing users file": func(cfg *config.Config) {
			cfg.Auth.Basic.Enabled = true
			cfg.Auth.Basic.UsersFile = filepath.Join(t.TempDir(), "missing.yaml")
		},
		"missing keys file": func(cfg *config.Config) {
			cfg.Auth.APIKey.Enabled = true
			cfg.Auth.APIKey.KeysFile = filepath.Join(t.TempDir(), "missing.yaml")
		},
		"jwt without key": func(cfg *config.Config) {
			cfg.Auth.JWT.Enabled = true
		},
		"mtls without CAs": func(cfg *config.Config) {
			cfg.Auth.MTLS.Enabled = true
		},
		"oidc with short cookie secret": func(cfg *config.Config) {
			cfg.Auth.OIDC.Enabled = true
			cfg.Auth.OIDC.CookieSecret = "short"
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := &config.Config{}
			mutate(cfg)
			_, err := NewRegistryFromConfig(context.Background(), cfg, nil, logging.NewNop(), nil)
			assert.Error(t, err)
		})
	}
}
