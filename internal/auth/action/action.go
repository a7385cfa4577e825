// Package action runs the per-request authentication pipeline.
//
// For each request the action resolves the strategies declared for the
// matched operation, invokes them in order with their effective options, and
// publishes the first identity produced into the request scope. Requests for
// operations without a requirement pass through without an identity.
package action

import (
	"context"
	"net/http"
	"time"

	"authflow/internal/auth"
	"authflow/internal/auth/resolver"
	"authflow/internal/contextutil"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
)

// StrategyResolver resolves the strategies securing an operation
type StrategyResolver interface {
	ResolveForRequest(ctx context.Context, operationID string) (*resolver.Resolution, error)
}

// Action authenticates requests against the strategies declared for their operation
type Action struct {
	resolver StrategyResolver
	logger   *logging.Logger
	metrics  *metrics.Collector
}

// New creates an authentication action
func New(resolver StrategyResolver, logger *logging.Logger, metrics *metrics.Collector) *Action {
	return &Action{
		resolver: resolver,
		logger:   logger.WithModule("auth.action"),
		metrics:  metrics,
	}
}

// Authenticate runs the pipeline for the operation recorded in scope.
//
// It returns (nil, nil) when the operation is public. On success the identity
// has been published to scope exactly once. Errors raised by a strategy are
// returned unchanged; resolution failures and a missing identity are returned
// as classified *auth.Error values.
func (a *Action) Authenticate(ctx context.Context, r *http.Request, scope *contextutil.Scope) (*auth.Identity, error) {
	logger := logging.FromContextOr(ctx, a.logger).With(logging.OperationKey, scope.OperationID)

	res, err := a.resolver.ResolveForRequest(ctx, scope.OperationID)
	if err != nil {
		a.record(scope.OperationID, "", outcomeOf(err))
		return nil, err
	}
	if res == nil {
		a.record(scope.OperationID, "", metrics.OutcomePublic)
		return nil, nil
	}

	scope.Requirement = res.Requirement
	scope.Challenge = challengeOf(res)

	for _, strategy := range res.Strategies {
		if err := ctx.Err(); err != nil {
			logger.Debug("Request ended before authentication completed", logging.Err(err))
			a.record(scope.OperationID, strategy.Name(), metrics.OutcomeError)
			return nil, err
		}

		opts := auth.MergeOptions(strategy.DefaultOptions(), res.Requirement.Options)

		start := time.Now()
		identity, err := strategy.Authenticate(ctx, r, opts)
		a.observe(strategy.Name(), time.Since(start))

		if err != nil {
			logger.Info("Authentication rejected",
				logging.StrategyKey, strategy.Name(),
				logging.Err(err),
			)
			a.record(scope.OperationID, strategy.Name(), outcomeOf(err))
			return nil, err
		}

		if !identity.Valid() {
			logger.Debug("Strategy returned no identity", logging.StrategyKey, strategy.Name())
			continue
		}

		if err := ctx.Err(); err != nil {
			a.record(scope.OperationID, strategy.Name(), metrics.OutcomeError)
			return nil, err
		}

		if identity.Provider == "" {
			identity.Provider = strategy.Name()
		}
		if err := scope.Publish(identity); err != nil {
			return nil, err
		}
		scope.Strategy = strategy.Name()

		logger.Debug("Authentication succeeded",
			logging.StrategyKey, strategy.Name(),
			"subject", identity.Subject,
		)
		a.record(scope.OperationID, strategy.Name(), metrics.OutcomeAuthenticated)
		return identity, nil
	}

	err = auth.UserProfileNotFound()
	logger.Info("No strategy produced an identity", "strategies", res.Requirement.Strategies)
	a.record(scope.OperationID, "", outcomeOf(err))
	return nil, err
}

func (a *Action) record(operation, strategy, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordAuthentication(operation, strategy, outcome)
	}
}

func (a *Action) observe(strategy string, d time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordStrategyDuration(strategy, d)
	}
}

// outcomeOf labels an error for metrics: its code when classified, "error" otherwise
func outcomeOf(err error) string {
	if code := auth.CodeOf(err); code != "" {
		return string(code)
	}
	return metrics.OutcomeError
}

// challengeOf returns the challenge of the first resolved strategy that has one
func challengeOf(res *resolver.Resolution) string {
	for _, s := range res.Strategies {
		if c, ok := s.(auth.Challenger); ok {
			opts := auth.MergeOptions(s.DefaultOptions(), res.Requirement.Options)
			if challenge := c.Challenge(opts); challenge != "" {
				return challenge
			}
		}
	}
	return ""
}
