package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"authflow/internal/auth"
)

// Reserved operation names for built-in routes
const (
	OperationHealth       = "authflow.health"
	OperationOIDCLogin    = "authflow.oidc.login"
	OperationOIDCCallback = "authflow.oidc.callback"
	OperationOIDCLogout   = "authflow.oidc.logout"
)

var reservedOperations = []string{OperationHealth, OperationOIDCLogin, OperationOIDCCallback, OperationOIDCLogout}

// OperationsFile is the YAML document declaring operations
type OperationsFile struct {
	// Default applies to operations without an authentication block
	Default *auth.Requirement `yaml:"default"`

	// Operations are matched in declaration order
	Operations []Operation `yaml:"operations"`
}

// LoadOperations reads and validates an operations file
func LoadOperations(path string) (*OperationsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operations file: %w", err)
	}
	return ParseOperations(data)
}

// ParseOperations decodes and validates operations YAML
func ParseOperations(data []byte) (*OperationsFile, error) {
	var f OperationsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse operations file: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *OperationsFile) validate() error {
	if f.Default != nil && f.Default.Skip {
		return fmt.Errorf("default authentication cannot be skipped")
	}

	seen := make(map[string]bool, len(f.Operations))
	for i := range f.Operations {
		op := &f.Operations[i]

		if op.Name == "" {
			return fmt.Errorf("operation #%d has no name", i)
		}
		if seen[op.Name] {
			return fmt.Errorf("duplicate operation %q", op.Name)
		}
		if slices.Contains(reservedOperations, op.Name) {
			return fmt.Errorf("operation name %q is reserved", op.Name)
		}
		seen[op.Name] = true

		if len(op.Paths) == 0 {
			return fmt.Errorf("operation %q has no paths", op.Name)
		}
		for _, p := range op.Paths {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("operation %q: path %q must start with '/'", op.Name, p)
			}
		}

		if op.Action == "" {
			op.Action = ActionProxy
		}
		if op.Action != ActionProxy && op.Action != ActionDeny {
			return fmt.Errorf("operation %q has unknown action %q", op.Name, op.Action)
		}

		for j, m := range op.Methods {
			op.Methods[j] = strings.ToUpper(m)
			if !isMethod(op.Methods[j]) {
				return fmt.Errorf("operation %q has unknown method %q", op.Name, m)
			}
		}
	}
	return nil
}

func isMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return true
	}
	return false
}
