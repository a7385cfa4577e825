package resolver

import (
	"context"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

// RequirementSource answers which requirement applies to an operation
type RequirementSource interface {
	RequirementFor(operationID string) (*auth.Requirement, bool)
}

// StrategySource looks up strategies by name
type StrategySource interface {
	Resolve(name string) (auth.Strategy, error)
}

// Resolution is the outcome of resolving an operation that requires authentication
type Resolution struct {
	// Requirement is the requirement that applies to the operation
	Requirement *auth.Requirement

	// Strategies are the resolved strategies in declared order
	Strategies []auth.Strategy
}

// Resolver combines the declaration table and the strategy registry.
// It is built once and evaluated for every request after routing.
type Resolver struct {
	requirements RequirementSource
	strategies   StrategySource
	logger       *logging.Logger
}

// New creates a strategy resolver
func New(requirements RequirementSource, strategies StrategySource, logger *logging.Logger) *Resolver {
	return &Resolver{
		requirements: requirements,
		strategies:   strategies,
		logger:       logger.WithModule("auth.resolver"),
	}
}

// ResolveForRequest returns the strategies securing operationID.
// It returns (nil, nil) when the operation is public, in which case the
// registry is not consulted.
func (r *Resolver) ResolveForRequest(ctx context.Context, operationID string) (*Resolution, error) {
	logger := logging.FromContextOr(ctx, r.logger)

	req, ok := r.requirements.RequirementFor(operationID)
	if !ok {
		logger.Debug("No authentication requirement", logging.OperationKey, operationID)
		return nil, nil
	}

	resolved := make([]auth.Strategy, 0, len(req.Strategies))
	for _, name := range req.Strategies {
		strategy, err := r.strategies.Resolve(name)
		if err != nil {
			logger.Error("Authentication strategy not found",
				logging.OperationKey, operationID,
				logging.StrategyKey, name,
			)
			return nil, err
		}
		resolved = append(resolved, strategy)
	}

	return &Resolution{
		Requirement: req,
		Strategies:  resolved,
	}, nil
}
