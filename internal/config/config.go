// Package config loads authflow settings from the environment, an optional
// config file and the operations file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"authflow/internal/auth"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "AUTHFLOW"

// Load loads the configuration from all sources and returns the merged result
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	Settings.PopulateViperDefaults(v)

	// Set up environment variable handling
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Load from config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// It's okay if the config file doesn't exist, but other errors should be reported
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return fromViper(v)
}

// fromViper builds and validates a Config from resolved settings
func fromViper(v *viper.Viper) (*Config, error) {
	// Create the config object
	config := &Config{}
	var err error

	// Server
	config.Server.Address = v.GetString("SERVER_ADDR")
	if config.Server.ShutdownTimeout, err = parseDuration(v, "SHUTDOWN_TIMEOUT"); err != nil {
		return nil, err
	}
	config.Metrics.Address = v.GetString("METRICS_ADDR")

	// TLS
	config.TLS.Enabled = v.GetBool("TLS_ENABLED")
	config.TLS.CertPath = v.GetString("TLS_CERT_PATH")
	config.TLS.KeyPath = v.GetString("TLS_KEY_PATH")
	config.TLS.ClientCAPaths = v.GetStringSlice("TLS_CLIENT_CA_PATHS")

	// Upstream
	if raw := v.GetString("UPSTREAM_URL"); raw != "" {
		upstreamURL, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream URL: %w", err)
		}
		config.Upstream.URL = upstreamURL
	}
	if config.Upstream.Timeout, err = parseDuration(v, "UPSTREAM_TIMEOUT"); err != nil {
		return nil, err
	}

	// Basic
	config.Auth.Basic.Enabled = v.GetBool("AUTH_BASIC_ENABLED")
	config.Auth.Basic.Realm = v.GetString("AUTH_BASIC_REALM")
	config.Auth.Basic.UsersFile = v.GetString("AUTH_BASIC_USERS_FILE")
	config.Auth.Basic.DatabaseURL = v.GetString("AUTH_BASIC_DATABASE_URL")

	// API key
	config.Auth.APIKey.Enabled = v.GetBool("AUTH_APIKEY_ENABLED")
	config.Auth.APIKey.KeysFile = v.GetString("AUTH_APIKEY_KEYS_FILE")
	config.Auth.APIKey.Header = v.GetString("AUTH_APIKEY_HEADER")
	config.Auth.APIKey.QueryParam = v.GetString("AUTH_APIKEY_QUERY_PARAM")

	// JWT
	config.Auth.JWT.Enabled = v.GetBool("AUTH_JWT_ENABLED")
	config.Auth.JWT.Secret = v.GetString("AUTH_JWT_SECRET")
	config.Auth.JWT.PublicKeyPath = v.GetString("AUTH_JWT_PUBLIC_KEY_PATH")
	config.Auth.JWT.Issuer = v.GetString("AUTH_JWT_ISSUER")
	config.Auth.JWT.Audience = v.GetString("AUTH_JWT_AUDIENCE")
	if config.Auth.JWT.Leeway, err = parseDuration(v, "AUTH_JWT_LEEWAY"); err != nil {
		return nil, err
	}

	// mTLS
	config.Auth.MTLS.Enabled = v.GetBool("AUTH_MTLS_ENABLED")
	config.Auth.MTLS.AllowDNSName = v.GetBool("AUTH_MTLS_ALLOW_DNS_NAME")

	// OIDC
	config.Auth.OIDC.Enabled = v.GetBool("AUTH_OIDC_ENABLED")
	config.Auth.OIDC.Issuer = v.GetString("AUTH_OIDC_ISSUER")
	config.Auth.OIDC.ClientID = v.GetString("AUTH_OIDC_CLIENT_ID")
	config.Auth.OIDC.ClientSecret = v.GetString("AUTH_OIDC_CLIENT_SECRET")
	config.Auth.OIDC.RedirectURL = v.GetString("AUTH_OIDC_REDIRECT_URL")
	config.Auth.OIDC.Scopes = v.GetStringSlice("AUTH_OIDC_SCOPES")
	config.Auth.OIDC.CookieName = v.GetString("AUTH_OIDC_COOKIE_NAME")
	config.Auth.OIDC.CookieSecret = v.GetString("AUTH_OIDC_COOKIE_SECRET")
	if config.Auth.OIDC.SessionTTL, err = parseDuration(v, "AUTH_OIDC_SESSION_TTL"); err != nil {
		return nil, err
	}

	// Bearer
	config.Auth.Bearer.Enabled = v.GetBool("AUTH_BEARER_ENABLED")
	config.Auth.Bearer.Issuer = v.GetString("AUTH_BEARER_ISSUER")
	config.Auth.Bearer.ClientID = v.GetString("AUTH_BEARER_CLIENT_ID")

	// Authorization
	config.Authz.Type = v.GetString("AUTHZ_TYPE")
	config.Authz.SpiceDB.Endpoint = v.GetString("AUTHZ_SPICEDB_ENDPOINT")
	config.Authz.SpiceDB.Insecure = v.GetBool("AUTHZ_SPICEDB_INSECURE")
	config.Authz.SpiceDB.Token = v.GetString("AUTHZ_SPICEDB_TOKEN")
	config.Authz.SpiceDB.ResourceType = v.GetString("AUTHZ_SPICEDB_RESOURCE_TYPE")
	config.Authz.SpiceDB.ResourceID = v.GetString("AUTHZ_SPICEDB_RESOURCE_ID")
	config.Authz.SpiceDB.SubjectType = v.GetString("AUTHZ_SPICEDB_SUBJECT_TYPE")

	// Observability
	config.Observability.LogLevel = v.GetString("LOG_LEVEL")
	config.Observability.LogFormat = v.GetString("LOG_FORMAT")

	// Operations
	config.OperationsPath = v.GetString("OPERATIONS_PATH")
	if config.OperationsPath != "" {
		ops, err := LoadOperations(config.OperationsPath)
		if err != nil {
			return nil, err
		}
		config.DefaultAuthentication = ops.Default
		config.Operations = ops.Operations
	}

	// Validate the configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func parseDuration(v *viper.Viper, name string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ToLower(name), err)
	}
	return d, nil
}

// validateConfig performs validation on the loaded configuration
func validateConfig(cfg *Config) error {
	// Validate required fields
	if cfg.Upstream.URL == nil || cfg.Upstream.URL.Scheme == "" || cfg.Upstream.URL.Host == "" {
		return fmt.Errorf("upstream URL is required")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return fmt.Errorf("TLS certificate path is required when TLS is enabled")
		}
		if cfg.TLS.KeyPath == "" {
			return fmt.Errorf("TLS key path is required when TLS is enabled")
		}
		// Check if certificate and key files exist
		if err := requireFiles("TLS certificate", cfg.TLS.CertPath, cfg.TLS.KeyPath); err != nil {
			return err
		}
		if err := requireFiles("TLS client CA", cfg.TLS.ClientCAPaths...); err != nil {
			return err
		}
	}

	// Validate authentication configurations
	if err := validateAuthConfig(cfg); err != nil {
		return err
	}

	// Validate authorization configurations
	if err := validateAuthzConfig(cfg); err != nil {
		return err
	}

	return validateOperations(cfg)
}

// validateAuthConfig validates authentication configuration
func validateAuthConfig(cfg *Config) error {
	if basic := cfg.Auth.Basic; basic.Enabled {
		if basic.UsersFile == "" && basic.DatabaseURL == "" {
			return fmt.Errorf("basic authentication requires a users file or a database URL")
		}
		if basic.UsersFile != "" && basic.DatabaseURL != "" {
			return fmt.Errorf("basic authentication accepts either a users file or a database URL, not both")
		}
		if err := requireFiles("users", basic.UsersFile); err != nil {
			return err
		}
	}

	if apiKey := cfg.Auth.APIKey; apiKey.Enabled {
		if apiKey.KeysFile == "" {
			return fmt.Errorf("API key file is required when API key authentication is enabled")
		}
		if err := requireFiles("API key", apiKey.KeysFile); err != nil {
			return err
		}
	}

	if jwt := cfg.Auth.JWT; jwt.Enabled {
		if (jwt.Secret == "") == (jwt.PublicKeyPath == "") {
			return fmt.Errorf("JWT authentication requires exactly one of a secret or a public key path")
		}
		if err := requireFiles("JWT public key", jwt.PublicKeyPath); err != nil {
			return err
		}
	}

	// mTLS identities come from the listener's verified client certificates
	if cfg.Auth.MTLS.Enabled {
		if !cfg.TLS.Enabled {
			return fmt.Errorf("TLS must be enabled when mTLS is enabled")
		}
		if len(cfg.TLS.ClientCAPaths) == 0 {
			return fmt.Errorf("at least one client CA path is required when mTLS is enabled")
		}
	}

	// Validate OIDC configuration
	if oidc := cfg.Auth.OIDC; oidc.Enabled {
		if oidc.Issuer == "" {
			return fmt.Errorf("OIDC issuer is required when OIDC is enabled")
		}
		if oidc.ClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
		if oidc.ClientSecret == "" {
			return fmt.Errorf("OIDC client secret is required when OIDC is enabled")
		}
		if oidc.RedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when OIDC is enabled")
		}
		switch len(oidc.CookieSecret) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("OIDC cookie secret must be 16, 24 or 32 bytes long")
		}
	}

	if bearer := cfg.Auth.Bearer; bearer.Enabled {
		if bearer.Issuer == "" {
			return fmt.Errorf("Bearer issuer is required when Bearer is enabled")
		}
		if bearer.ClientID == "" {
			return fmt.Errorf("Bearer client ID is required when Bearer is enabled")
		}
	}

	return nil
}

// validateAuthzConfig validates authorization configuration
func validateAuthzConfig(cfg *Config) error {
	switch cfg.Authz.Type {
	case "", "none":
		return nil
	case "spicedb":
		if cfg.Authz.SpiceDB.Token == "" {
			return fmt.Errorf("SpiceDB token is required when using SpiceDB authorization")
		}
		if cfg.Authz.SpiceDB.ResourceID == "" {
			return fmt.Errorf("SpiceDB resource ID is required when using SpiceDB authorization")
		}
		return nil
	default:
		return fmt.Errorf("unknown authorizer type: '%s'", cfg.Authz.Type)
	}
}

// validateOperations checks operations against the rest of the configuration
func validateOperations(cfg *Config) error {
	authzEnabled := cfg.Authz.Type == "spicedb"
	for _, op := range cfg.Operations {
		if op.Permission == "" {
			continue
		}
		if !authzEnabled {
			return fmt.Errorf("operation %q requires permission %q but no authorizer is configured", op.Name, op.Permission)
		}
		if !requiresAuthentication(op, cfg.DefaultAuthentication) {
			return fmt.Errorf("operation %q requires permission %q but is public", op.Name, op.Permission)
		}
	}
	return nil
}

// requiresAuthentication reports whether op ends up with a requirement
func requiresAuthentication(op Operation, def *auth.Requirement) bool {
	if op.Authentication != nil {
		return !op.Authentication.Skip
	}
	return def != nil && len(def.Strategies) > 0
}

func requireFiles(kind string, paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%s file not found: %s", kind, path)
		}
	}
	return nil
}
