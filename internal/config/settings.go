package config

import "github.com/spf13/viper"

// SettingType represents the type of a setting
type SettingType string

const (
	// String type for string settings
	String SettingType = "string"
	// Bool type for boolean settings
	Bool SettingType = "bool"
	// Int type for integer settings
	Int SettingType = "int"
	// StringSlice type for string slice settings
	StringSlice SettingType = "stringSlice"
)

// Setting defines a configuration setting
type Setting struct {
	// Name is the name of the setting
	Name string
	// Short is a short description of the setting
	Short string
	// Type is the type of the setting
	Type SettingType
	// Default is the default value of the setting
	Default interface{}
	// Env is the environment variable name for the setting
	Env string
	// Required indicates whether the setting is required
	Required bool
}

// SettingList is a list of settings
type SettingList []Setting

// PopulateViperDefaults sets default values for all settings in Viper
func (sl SettingList) PopulateViperDefaults(v *viper.Viper) {
	for _, s := range sl {
		v.SetDefault(s.Name, s.Default)
	}
}

// Lookup returns the setting with the given name
func (sl SettingList) Lookup(name string) (Setting, bool) {
	for _, s := range sl {
		if s.Name == name {
			return s, true
		}
	}
	return Setting{}, false
}

// Settings defines all application settings
var Settings = SettingList{
	// Server settings
	{
		Name:    "SERVER_ADDR",
		Short:   "Address on which the server listens",
		Type:    String,
		Default: ":8000",
		Env:     "AUTHFLOW_SERVER_ADDR",
	},
	{
		Name:    "METRICS_ADDR",
		Short:   "Address on which the metrics server listens",
		Type:    String,
		Default: ":9090",
		Env:     "AUTHFLOW_METRICS_ADDR",
	},
	{
		Name:    "SHUTDOWN_TIMEOUT",
		Short:   "Maximum time to wait for graceful shutdown",
		Type:    String,
		Default: "30s",
		Env:     "AUTHFLOW_SHUTDOWN_TIMEOUT",
	},

	// TLS settings
	{
		Name:    "TLS_ENABLED",
		Short:   "Enable TLS for the server",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_TLS_ENABLED",
	},
	{
		Name:    "TLS_CERT_PATH",
		Short:   "Path to TLS certificate file",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_TLS_CERT_PATH",
	},
	{
		Name:    "TLS_KEY_PATH",
		Short:   "Path to TLS key file",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_TLS_KEY_PATH",
	},
	{
		Name:    "TLS_CLIENT_CA_PATHS",
		Short:   "CA certificates trusted for client certificates",
		Type:    StringSlice,
		Default: []string{},
		Env:     "AUTHFLOW_TLS_CLIENT_CA_PATHS",
	},

	// Upstream settings
	{
		Name:     "UPSTREAM_URL",
		Short:    "URL of the upstream service",
		Type:     String,
		Default:  "",
		Env:      "AUTHFLOW_UPSTREAM_URL",
		Required: true,
	},
	{
		Name:    "UPSTREAM_TIMEOUT",
		Short:   "Timeout for upstream requests",
		Type:    String,
		Default: "30s",
		Env:     "AUTHFLOW_UPSTREAM_TIMEOUT",
	},

	// Operations
	{
		Name:    "OPERATIONS_PATH",
		Short:   "YAML file declaring operations and their authentication",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_OPERATIONS_PATH",
	},

	// Authentication: basic
	{
		Name:    "AUTH_BASIC_ENABLED",
		Short:   "Enable username and password authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_BASIC_ENABLED",
	},
	{
		Name:    "AUTH_BASIC_REALM",
		Short:   "Realm advertised in the Basic challenge",
		Type:    String,
		Default: "authflow",
		Env:     "AUTHFLOW_AUTH_BASIC_REALM",
	},
	{
		Name:    "AUTH_BASIC_USERS_FILE",
		Short:   "YAML users file",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_BASIC_USERS_FILE",
	},
	{
		Name:    "AUTH_BASIC_DATABASE_URL",
		Short:   "PostgreSQL DSN of the users database",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_BASIC_DATABASE_URL",
	},

	// Authentication: API key
	{
		Name:    "AUTH_APIKEY_ENABLED",
		Short:   "Enable API key authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_APIKEY_ENABLED",
	},
	{
		Name:    "AUTH_APIKEY_KEYS_FILE",
		Short:   "YAML file of hashed API keys",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_APIKEY_KEYS_FILE",
	},
	{
		Name:    "AUTH_APIKEY_HEADER",
		Short:   "Header carrying the API key",
		Type:    String,
		Default: "X-API-Key",
		Env:     "AUTHFLOW_AUTH_APIKEY_HEADER",
	},
	{
		Name:    "AUTH_APIKEY_QUERY_PARAM",
		Short:   "Query parameter carrying the API key",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_APIKEY_QUERY_PARAM",
	},

	// Authentication: JWT
	{
		Name:    "AUTH_JWT_ENABLED",
		Short:   "Enable JWT authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_JWT_ENABLED",
	},
	{
		Name:    "AUTH_JWT_SECRET",
		Short:   "HMAC secret for JWT verification",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_JWT_SECRET",
	},
	{
		Name:    "AUTH_JWT_PUBLIC_KEY_PATH",
		Short:   "RSA public key for JWT verification",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_JWT_PUBLIC_KEY_PATH",
	},
	{
		Name:    "AUTH_JWT_ISSUER",
		Short:   "Expected JWT issuer",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_JWT_ISSUER",
	},
	{
		Name:    "AUTH_JWT_AUDIENCE",
		Short:   "Expected JWT audience",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_JWT_AUDIENCE",
	},
	{
		Name:    "AUTH_JWT_LEEWAY",
		Short:   "Clock skew tolerated on JWT time claims",
		Type:    String,
		Default: "0s",
		Env:     "AUTHFLOW_AUTH_JWT_LEEWAY",
	},

	// Authentication: mTLS
	{
		Name:    "AUTH_MTLS_ENABLED",
		Short:   "Enable mTLS authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_MTLS_ENABLED",
	},
	{
		Name:    "AUTH_MTLS_ALLOW_DNS_NAME",
		Short:   "Use the first DNS name when a certificate has no Common Name",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_MTLS_ALLOW_DNS_NAME",
	},

	// Authentication: OIDC
	{
		Name:    "AUTH_OIDC_ENABLED",
		Short:   "Enable OIDC authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_OIDC_ENABLED",
	},
	{
		Name:    "AUTH_OIDC_ISSUER",
		Short:   "OIDC issuer URL",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_OIDC_ISSUER",
	},
	{
		Name:    "AUTH_OIDC_CLIENT_ID",
		Short:   "OIDC client ID",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_OIDC_CLIENT_ID",
	},
	{
		Name:    "AUTH_OIDC_CLIENT_SECRET",
		Short:   "OIDC client secret",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_OIDC_CLIENT_SECRET",
	},
	{
		Name:    "AUTH_OIDC_REDIRECT_URL",
		Short:   "OIDC redirect URL",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_OIDC_REDIRECT_URL",
	},
	{
		Name:    "AUTH_OIDC_SCOPES",
		Short:   "OIDC scopes",
		Type:    StringSlice,
		Default: []string{"openid", "email", "profile"},
		Env:     "AUTHFLOW_AUTH_OIDC_SCOPES",
	},
	{
		Name:    "AUTH_OIDC_COOKIE_NAME",
		Short:   "Name of the OIDC session cookie",
		Type:    String,
		Default: "authflow_session",
		Env:     "AUTHFLOW_AUTH_OIDC_COOKIE_NAME",
	},
	{
		Name:    "AUTH_OIDC_COOKIE_SECRET",
		Short:   "Secret key for OIDC session cookie encryption",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_OIDC_COOKIE_SECRET",
	},
	{
		Name:    "AUTH_OIDC_SESSION_TTL",
		Short:   "Session lifetime when the provider sends no refresh expiry",
		Type:    String,
		Default: "30m",
		Env:     "AUTHFLOW_AUTH_OIDC_SESSION_TTL",
	},

	// Authentication: Bearer
	{
		Name:    "AUTH_BEARER_ENABLED",
		Short:   "Enable Bearer token authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTH_BEARER_ENABLED",
	},
	{
		Name:    "AUTH_BEARER_ISSUER",
		Short:   "Bearer token issuer",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_BEARER_ISSUER",
	},
	{
		Name:    "AUTH_BEARER_CLIENT_ID",
		Short:   "Bearer token client ID",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTH_BEARER_CLIENT_ID",
	},

	// Authorization: SpiceDB
	{
		Name:    "AUTHZ_TYPE",
		Short:   "Type of authorizer to use (spicedb, none)",
		Type:    String,
		Default: "none",
		Env:     "AUTHFLOW_AUTHZ_TYPE",
	},
	{
		Name:    "AUTHZ_SPICEDB_ENDPOINT",
		Short:   "SpiceDB endpoint",
		Type:    String,
		Default: "localhost:50051",
		Env:     "AUTHFLOW_AUTHZ_SPICEDB_ENDPOINT",
	},
	{
		Name:    "AUTHZ_SPICEDB_INSECURE",
		Short:   "Use insecure connection to SpiceDB",
		Type:    Bool,
		Default: false,
		Env:     "AUTHFLOW_AUTHZ_SPICEDB_INSECURE",
	},
	{
		Name:    "AUTHZ_SPICEDB_TOKEN",
		Short:   "SpiceDB authentication token",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTHZ_SPICEDB_TOKEN",
	},
	{
		Name:    "AUTHZ_SPICEDB_RESOURCE_TYPE",
		Short:   "SpiceDB resource type",
		Type:    String,
		Default: "instance",
		Env:     "AUTHFLOW_AUTHZ_SPICEDB_RESOURCE_TYPE",
	},
	{
		Name:    "AUTHZ_SPICEDB_RESOURCE_ID",
		Short:   "SpiceDB resource ID",
		Type:    String,
		Default: "",
		Env:     "AUTHFLOW_AUTHZ_SPICEDB_RESOURCE_ID",
	},
	{
		Name:    "AUTHZ_SPICEDB_SUBJECT_TYPE",
		Short:   "SpiceDB subject type",
		Type:    String,
		Default: "user",
		Env:     "AUTHFLOW_AUTHZ_SPICEDB_SUBJECT_TYPE",
	},

	// Observability
	{
		Name:    "LOG_LEVEL",
		Short:   "Logging level",
		Type:    String,
		Default: "info",
		Env:     "AUTHFLOW_LOG_LEVEL",
	},
	{
		Name:    "LOG_FORMAT",
		Short:   "Logging format (json, text, console)",
		Type:    String,
		Default: "json",
		Env:     "AUTHFLOW_LOG_FORMAT",
	},
}
