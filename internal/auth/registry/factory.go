package registry

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"authflow/internal/auth/apikey"
	"authflow/internal/auth/basic"
	"authflow/internal/auth/bearer"
	"authflow/internal/auth/jwt"
	"authflow/internal/auth/mtls"
	"authflow/internal/auth/oidc"
	"authflow/internal/config"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
	"authflow/internal/userstore"
	"authflow/internal/userstore/sqlstore"
)

// Bootstrap is the result of building the strategies from configuration
type Bootstrap struct {
	// Registry holds every enabled strategy
	Registry *Registry

	// OIDC serves the sign-in routes; nil unless OIDC is enabled
	OIDC *oidc.Flow

	closers []io.Closer
}

// Close releases resources held by strategies, such as database pools
func (b *Bootstrap) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewRegistryFromConfig registers a strategy for every enabled method.
// clientCAs is the pool the listener verifies client certificates against.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, clientCAs *x509.CertPool, logger *logging.Logger, metrics *metrics.Collector) (*Bootstrap, error) {
	factoryLogger := logger.WithModule("auth.factory")
	b := &Bootstrap{Registry: New(logger)}

	fail := func(err error) (*Bootstrap, error) {
		_ = b.Close()
		return nil, err
	}

	if cfg.Auth.Basic.Enabled {
		store, err := newUserStore(ctx, cfg, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize basic strategy: %w", err))
		}
		if closer, ok := store.(io.Closer); ok {
			b.closers = append(b.closers, closer)
		}
		if err := b.Registry.Register(basic.New(store, basic.Config{Realm: cfg.Auth.Basic.Realm}, logger)); err != nil {
			return fail(err)
		}
		factoryLogger.Info("Basic authentication enabled")
	}

	if cfg.Auth.APIKey.Enabled {
		keys, err := apikey.LoadKeys(cfg.Auth.APIKey.KeysFile)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize API key strategy: %w", err))
		}
		strategy, err := apikey.New(keys, apikey.Config{
			Header:     cfg.Auth.APIKey.Header,
			QueryParam: cfg.Auth.APIKey.QueryParam,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize API key strategy: %w", err))
		}
		if err := b.Registry.Register(strategy); err != nil {
			return fail(err)
		}
		factoryLogger.Info("API key authentication enabled", "keys", len(keys))
	}

	if cfg.Auth.JWT.Enabled {
		strategy, err := jwt.New(jwt.Config{
			Secret:        cfg.Auth.JWT.Secret,
			PublicKeyPath: cfg.Auth.JWT.PublicKeyPath,
			Issuer:        cfg.Auth.JWT.Issuer,
			Audience:      cfg.Auth.JWT.Audience,
			Leeway:        cfg.Auth.JWT.Leeway,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize JWT strategy: %w", err))
		}
		if err := b.Registry.Register(strategy); err != nil {
			return fail(err)
		}
		factoryLogger.Info("JWT authentication enabled")
	}

	if cfg.Auth.MTLS.Enabled {
		strategy, err := mtls.New(mtls.Config{
			CAPaths:      cfg.TLS.ClientCAPaths,
			Roots:        clientCAs,
			AllowDNSName: cfg.Auth.MTLS.AllowDNSName,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize mTLS strategy: %w", err))
		}
		if err := b.Registry.Register(strategy); err != nil {
			return fail(err)
		}
		factoryLogger.Info("mTLS authentication enabled")
	}

	if cfg.Auth.Bearer.Enabled {
		strategy, err := bearer.New(ctx, bearer.Config{
			Issuer:   cfg.Auth.Bearer.Issuer,
			ClientID: cfg.Auth.Bearer.ClientID,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Bearer strategy: %w", err))
		}
		if err := b.Registry.Register(strategy); err != nil {
			return fail(err)
		}
		factoryLogger.Info("Bearer authentication enabled")
	}

	if oidcCfg := cfg.Auth.OIDC; oidcCfg.Enabled {
		codec, err := oidc.NewSessionCodec(oidcCfg.CookieName, oidcCfg.CookieSecret)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize OIDC session: %w", err))
		}
		flow, err := oidc.New(ctx, oidc.Config{
			Issuer:       oidcCfg.Issuer,
			ClientID:     oidcCfg.ClientID,
			ClientSecret: oidcCfg.ClientSecret,
			RedirectURL:  oidcCfg.RedirectURL,
			Scopes:       oidcCfg.Scopes,
			CookieName:   oidcCfg.CookieName,
			CookieSecret: oidcCfg.CookieSecret,
			SessionTTL:   oidcCfg.SessionTTL,
		}, codec, logger, metrics)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize OIDC flow: %w", err))
		}
		if err := b.Registry.Register(oidc.NewStrategy(codec, oidc.DefaultLoginPath, logger)); err != nil {
			return fail(err)
		}
		b.OIDC = flow
		factoryLogger.Info("OIDC authentication enabled", "callback", flow.CallbackPath())
	}

	if b.Registry.Len() == 0 {
		factoryLogger.Warn("No authentication strategies enabled")
	} else {
		factoryLogger.Info("Authentication strategies registered", "strategies", b.Registry.Names())
	}

	return b, nil
}

// newUserStore selects the SQL store when a database URL is configured
func newUserStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (userstore.Store, error) {
	if dsn := cfg.Auth.Basic.DatabaseURL; dsn != "" {
		store, err := sqlstore.Open(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := userstore.LoadFile(cfg.Auth.Basic.UsersFile)
	if err != nil {
		return nil, err
	}
	return store, nil
}
