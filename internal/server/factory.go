package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"

	"authflow/internal/auth"
	"authflow/internal/auth/action"
	"authflow/internal/auth/metadata"
	"authflow/internal/auth/oidc"
	"authflow/internal/auth/registry"
	"authflow/internal/auth/resolver"
	"authflow/internal/authz"
	"authflow/internal/authz/spicedb"
	"authflow/internal/config"
	"authflow/internal/observability"
	"authflow/internal/observability/logging"
	"authflow/internal/proxy/router"
	tlsconfig "authflow/internal/tls"
)

// HealthPath is the path of the built-in health operation
const HealthPath = "/healthz"

// NewFromConfig creates a new server from configuration
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	obs, err := observability.NewProvider(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	return newServer(ctx, cfg, obs)
}

func newServer(ctx context.Context, cfg *config.Config, obs *observability.Provider) (*Server, error) {
	logger := obs.Logger

	// Set up TLS if enabled
	var tlsCfg *tls.Config
	var clientCAs *x509.CertPool
	if cfg.TLS.Enabled {
		tlsSetup := &tlsconfig.Config{
			Logger:        logger.WithModule("tls"),
			CertPath:      cfg.TLS.CertPath,
			KeyPath:       cfg.TLS.KeyPath,
			ClientCAPaths: cfg.TLS.ClientCAPaths,
		}

		var err error
		tlsCfg, clientCAs, err = tlsSetup.ServerConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS configuration: %w", err)
		}
	}

	// Create authentication strategies
	boot, err := registry.NewRegistryFromConfig(ctx, cfg, clientCAs, logger, obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authentication strategies: %w", err)
	}

	builtins := builtinRoutes(boot)

	table, err := buildDeclarations(cfg, builtins)
	if err != nil {
		_ = boot.Close()
		return nil, fmt.Errorf("invalid authentication declarations: %w", err)
	}
	warnUnknownStrategies(table, boot.Registry, logger)

	authn := action.New(resolver.New(table, boot.Registry, logger), logger, obs.Metrics)

	// Create authorizer
	var authorizer authz.Authorizer
	if cfg.Authz.Type == "spicedb" {
		spicedbCfg := spicedb.Config{
			Endpoint:     cfg.Authz.SpiceDB.Endpoint,
			Insecure:     cfg.Authz.SpiceDB.Insecure,
			Token:        cfg.Authz.SpiceDB.Token,
			ResourceType: cfg.Authz.SpiceDB.ResourceType,
			ResourceID:   cfg.Authz.SpiceDB.ResourceID,
			SubjectType:  cfg.Authz.SpiceDB.SubjectType,
		}
		client, err := spicedb.Dial(spicedbCfg)
		if err != nil {
			_ = boot.Close()
			return nil, err
		}
		logger.Info("SpiceDB authorizer enabled", "endpoint", spicedbCfg.Endpoint, "insecure", spicedbCfg.Insecure)
		authorizer = spicedb.New(spicedbCfg, client, logger)
	}

	// Create router
	proxyRouter := router.New(router.Config{
		UpstreamURL:     cfg.Upstream.URL,
		UpstreamTimeout: cfg.Upstream.Timeout,
		Builtins:        builtins,
		Operations:      convertOperations(cfg.Operations),
	}, authn.Middleware, authorizer, logger, obs.Metrics)

	serverConfig := Config{
		Address:         cfg.Server.Address,
		MetricsAddress:  cfg.Metrics.Address,
		TLSConfig:       tlsCfg,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	// observability -> session refresh -> router -> authentication -> operation handler
	var handler http.Handler = proxyRouter
	if boot.OIDC != nil {
		handler = boot.OIDC.RefreshMiddleware(handler)
	}
	handler = obs.Middleware(handler)

	srv := New(serverConfig, handler, obs.MetricsHandler(), logger)
	srv.closers = append(srv.closers, boot)
	return srv, nil
}

// builtinRoutes returns the operations served by the proxy itself
func builtinRoutes(boot *registry.Bootstrap) []router.Builtin {
	builtins := []router.Builtin{{
		Name:    config.OperationHealth,
		Path:    HealthPath,
		Methods: []string{http.MethodGet, http.MethodHead},
		Handler: http.HandlerFunc(router.Health),
	}}

	if flow := boot.OIDC; flow != nil {
		builtins = append(builtins,
			router.Builtin{Name: config.OperationOIDCLogin, Path: oidc.DefaultLoginPath, Methods: []string{http.MethodGet}, Handler: http.HandlerFunc(flow.Login)},
			router.Builtin{Name: config.OperationOIDCCallback, Path: flow.CallbackPath(), Methods: []string{http.MethodGet}, Handler: http.HandlerFunc(flow.Callback)},
			router.Builtin{Name: config.OperationOIDCLogout, Path: oidc.DefaultLogoutPath, Handler: http.HandlerFunc(flow.Logout)},
		)
	}
	return builtins
}

// buildDeclarations collects the requirement of every operation. Built-in
// operations are always public.
func buildDeclarations(cfg *config.Config, builtins []router.Builtin) (*metadata.Table, error) {
	b := metadata.NewBuilder()
	if cfg.DefaultAuthentication != nil {
		b.Default(*cfg.DefaultAuthentication)
	}
	for _, builtin := range builtins {
		b.Declare(builtin.Name, auth.Requirement{Skip: true})
	}
	for _, op := range cfg.Operations {
		if op.Authentication != nil {
			b.Declare(op.Name, *op.Authentication)
		}
	}
	return b.Build()
}

// warnUnknownStrategies logs requirements naming unregistered strategies.
// Such operations fail per request rather than at startup.
func warnUnknownStrategies(table *metadata.Table, strategies *registry.Registry, logger *logging.Logger) {
	check := func(operation string, req *auth.Requirement) {
		for _, name := range req.Strategies {
			if _, err := strategies.Resolve(name); err != nil {
				logger.Warn("Operation names an unregistered strategy",
					logging.OperationKey, operation,
					logging.StrategyKey, name,
				)
			}
		}
	}

	for _, operation := range table.Operations() {
		if req, ok := table.RequirementFor(operation); ok {
			check(operation, req)
		}
	}
	if req, ok := table.Default(); ok {
		check("default", req)
	}
}

// convertOperations converts config.Operation to router.Operation
func convertOperations(ops []config.Operation) []router.Operation {
	out := make([]router.Operation, len(ops))
	for i, op := range ops {
		out[i] = router.Operation{
			Name:        op.Name,
			Action:      op.Action,
			Paths:       op.Paths,
			MatchPrefix: op.MatchPrefix,
			Methods:     op.Methods,
			Permission:  op.Permission,
			Resource:    op.Resource,
		}
	}
	return out
}
