package auth

import (
	"context"
	"net/http"
)

// Identity represents an authenticated principal
type Identity struct {
	// Subject is the unique identifier for this identity
	Subject string

	// Provider is the name of the strategy that produced the identity (e.g., "basic", "jwt")
	Provider string

	// Name is a human readable display name
	Name string

	// Email is the principal's email address, if known
	Email string

	// Attributes contains additional identity information
	Attributes map[string]interface{}
}

// Valid reports whether the identity carries its identifying field
func (i *Identity) Valid() bool {
	return i != nil && i.Subject != ""
}

// Strategy is a named unit of authentication logic.
//
// Authenticate returns (nil, nil) when the request carries no credentials the
// strategy understands. It returns an error when credentials are present but
// rejected, or when verification could not be completed.
type Strategy interface {
	// Name returns the unique registry name of this strategy
	Name() string

	// DefaultOptions returns the options bound to this strategy at startup
	DefaultOptions() Options

	// Authenticate verifies the request using the effective options
	Authenticate(ctx context.Context, r *http.Request, opts Options) (*Identity, error)
}

// Challenger is implemented by strategies that can describe a WWW-Authenticate challenge
type Challenger interface {
	Challenge(opts Options) string
}

// Requirement declares which strategies secure an operation
type Requirement struct {
	// Strategies lists strategy names tried in order until one yields an identity
	Strategies []string `yaml:"strategies" json:"strategies"`

	// Options override the strategies' default options
	Options Options `yaml:"options" json:"options"`

	// Skip marks the operation as public even when a default requirement exists
	Skip bool `yaml:"skip" json:"skip"`
}

// Clone returns a deep copy of the requirement's slices and a shallow copy of its options
func (r Requirement) Clone() Requirement {
	out := Requirement{Skip: r.Skip}
	if r.Strategies != nil {
		out.Strategies = append([]string(nil), r.Strategies...)
	}
	if r.Options != nil {
		out.Options = MergeOptions(nil, r.Options)
	}
	return out
}
