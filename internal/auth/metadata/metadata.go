// Package metadata holds the static authentication declarations for operations.
//
// Declarations are collected once at startup through a Builder and queried by
// operation name at request time. The resulting Table is immutable.
package metadata

import (
	"fmt"

	"authflow/internal/auth"
)

// Builder collects per-operation requirements and the process-wide default
type Builder struct {
	declared   map[string]auth.Requirement
	order      []string
	defaultReq *auth.Requirement
	errs       []error
}

// NewBuilder creates an empty declaration builder
func NewBuilder() *Builder {
	return &Builder{declared: make(map[string]auth.Requirement)}
}

// Declare attaches a requirement to an operation
func (b *Builder) Declare(operationID string, req auth.Requirement) *Builder {
	switch {
	case operationID == "":
		b.errs = append(b.errs, fmt.Errorf("operation name is required"))
	case b.has(operationID):
		b.errs = append(b.errs, fmt.Errorf("operation %q declared more than once", operationID))
	default:
		if err := validate(req); err != nil {
			b.errs = append(b.errs, fmt.Errorf("operation %q: %w", operationID, err))
			return b
		}
		b.declared[operationID] = req.Clone()
		b.order = append(b.order, operationID)
	}
	return b
}

// Default sets the requirement used for operations without their own declaration
func (b *Builder) Default(req auth.Requirement) *Builder {
	if req.Skip {
		b.errs = append(b.errs, fmt.Errorf("default requirement cannot be skip"))
		return b
	}
	if err := validate(req); err != nil {
		b.errs = append(b.errs, fmt.Errorf("default requirement: %w", err))
		return b
	}
	r := req.Clone()
	b.defaultReq = &r
	return b
}

// Build returns the immutable declaration table
func (b *Builder) Build() (*Table, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	t := &Table{
		declared: make(map[string]auth.Requirement, len(b.declared)),
	}
	for id, req := range b.declared {
		t.declared[id] = req.Clone()
	}
	if b.defaultReq != nil {
		r := b.defaultReq.Clone()
		t.defaultReq = &r
	}
	t.operations = append([]string(nil), b.order...)
	return t, nil
}

func (b *Builder) has(operationID string) bool {
	_, ok := b.declared[operationID]
	return ok
}

func validate(req auth.Requirement) error {
	if req.Skip {
		return nil
	}
	if len(req.Strategies) == 0 {
		return fmt.Errorf("requirement names no strategy")
	}
	for _, name := range req.Strategies {
		if name == "" {
			return fmt.Errorf("requirement contains an empty strategy name")
		}
	}
	return nil
}

// Table answers which requirement applies to an operation
type Table struct {
	declared   map[string]auth.Requirement
	defaultReq *auth.Requirement
	operations []string
}

// RequirementFor returns the requirement for an operation.
// Order: the operation's own declaration, then the default, then none.
// An operation declared with Skip has no requirement.
func (t *Table) RequirementFor(operationID string) (*auth.Requirement, bool) {
	if t == nil {
		return nil, false
	}
	if req, ok := t.declared[operationID]; ok {
		if req.Skip {
			return nil, false
		}
		r := req.Clone()
		return &r, true
	}
	if t.defaultReq != nil {
		r := t.defaultReq.Clone()
		return &r, true
	}
	return nil, false
}

// Operations returns the explicitly declared operation names in declaration order
func (t *Table) Operations() []string {
	return append([]string(nil), t.operations...)
}

// Default returns the process-wide default requirement, if any
func (t *Table) Default() (*auth.Requirement, bool) {
	if !t.HasDefault() {
		return nil, false
	}
	r := t.defaultReq.Clone()
	return &r, true
}

// HasDefault reports whether a process-wide default requirement is configured
func (t *Table) HasDefault() bool {
	return t != nil && t.defaultReq != nil
}
