package config

import (
	"net/url"
	"time"

	"authflow/internal/auth"
)

// Operation actions
const (
	ActionProxy = "proxy"
	ActionDeny  = "deny"
)

// Config represents the complete application configuration
type Config struct {
	// Server holds HTTP server configuration
	Server struct {
		// Address is the address to listen on
		Address string
		// ShutdownTimeout is the maximum time to wait for a graceful shutdown
		ShutdownTimeout time.Duration
	}

	// Metrics holds metrics server configuration
	Metrics struct {
		// Address is the address to listen on for the metrics server
		Address string
	}

	// TLS holds listener TLS configuration
	TLS struct {
		// Enabled indicates whether TLS is enabled
		Enabled bool
		// CertPath is the path to the TLS certificate
		CertPath string
		// KeyPath is the path to the TLS key
		KeyPath string
		// ClientCAPaths are CA certificates trusted for client certificates
		ClientCAPaths []string
	}

	// Upstream holds configuration for the upstream service
	Upstream struct {
		// URL is the URL of the upstream service
		URL *url.URL
		// Timeout is the maximum time to wait for upstream responses
		Timeout time.Duration
	}

	// Auth holds the configuration of each authentication strategy
	Auth struct {
		// Basic holds username and password authentication configuration
		Basic struct {
			Enabled bool
			// Realm is advertised in the WWW-Authenticate challenge
			Realm string
			// UsersFile is a YAML users file
			UsersFile string
			// DatabaseURL is a PostgreSQL DSN used instead of UsersFile
			DatabaseURL string
		}

		// APIKey holds API key authentication configuration
		APIKey struct {
			Enabled bool
			// KeysFile is a YAML file of hashed keys
			KeysFile string
			// Header carries the key
			Header string
			// QueryParam optionally carries the key
			QueryParam string
		}

		// JWT holds self-issued token authentication configuration
		JWT struct {
			Enabled       bool
			Secret        string
			PublicKeyPath string
			Issuer        string
			Audience      string
			Leeway        time.Duration
		}

		// MTLS holds mTLS authentication configuration
		MTLS struct {
			// Enabled indicates whether mTLS authentication is enabled
			Enabled bool
			// AllowDNSName lets certificates without Common Name use their first DNS name
			AllowDNSName bool
		}

		// OIDC holds OIDC sign-in configuration
		OIDC struct {
			// Enabled indicates whether OIDC authentication is enabled
			Enabled bool
			// Issuer is the OIDC issuer URL
			Issuer string
			// ClientID is the OIDC client ID
			ClientID string
			// ClientSecret is the OIDC client secret
			ClientSecret string
			// RedirectURL is the redirect URL for OIDC authentication
			RedirectURL string
			// Scopes is a list of OIDC scopes to request
			Scopes []string
			// CookieName is the name of the session cookie
			CookieName string
			// CookieSecret is the secret key for cookie encryption
			CookieSecret string
			// SessionTTL bounds sessions without a provider refresh expiry
			SessionTTL time.Duration
		}

		// Bearer holds Bearer token authentication configuration
		Bearer struct {
			// Enabled indicates whether Bearer token authentication is enabled
			Enabled bool
			// Issuer is the JWT issuer URL
			Issuer string
			// ClientID is the client ID for token validation
			ClientID string
		}
	}

	// Authz holds authorization configuration
	Authz struct {
		// Type is the type of authorizer to use (spicedb, none)
		Type string

		// SpiceDB holds SpiceDB configuration
		SpiceDB struct {
			// Endpoint is the SpiceDB endpoint
			Endpoint string
			// Insecure indicates whether to use an insecure connection
			Insecure bool
			// Token is the SpiceDB authentication token
			Token string
			// ResourceType is the SpiceDB resource type
			ResourceType string
			// ResourceID is the SpiceDB resource ID
			ResourceID string
			// SubjectType is the SpiceDB subject type
			SubjectType string
		}
	}

	// Observability holds observability configuration
	Observability struct {
		// LogLevel is the minimum log level to emit
		LogLevel string
		// LogFormat is the log format (json, text, console)
		LogFormat string
	}

	// OperationsPath is the file the operations were loaded from
	OperationsPath string

	// DefaultAuthentication applies to operations that declare no authentication
	DefaultAuthentication *auth.Requirement

	// Operations are the routed operations
	Operations []Operation
}

// Operation is a named set of routes with one authentication requirement
type Operation struct {
	// Name is the unique operation ID
	Name string `json:"name" yaml:"name"`

	// Action is "proxy" (default) or "deny"
	Action string `json:"action" yaml:"action"`

	// Paths is a list of URL paths this operation applies to
	Paths []string `json:"paths" yaml:"paths"`

	// MatchPrefix indicates whether to match the path prefix instead of exact match
	MatchPrefix bool `json:"match_prefix" yaml:"match_prefix"`

	// Methods is a list of HTTP methods this operation applies to (empty = all methods)
	Methods []string `json:"methods" yaml:"methods"`

	// Authentication overrides the default requirement; nil inherits it
	Authentication *auth.Requirement `json:"authentication" yaml:"authentication"`

	// Permission, if set, is checked with the authorizer after authentication
	Permission string `json:"permission" yaml:"permission"`

	// Resource is the resource identifier for authorization checks
	// If empty, the default resource from configuration is used
	Resource string `json:"resource" yaml:"resource"`
}
