package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperations(t *testing.T) {
	f, err := ParseOperations([]byte(operationsYAML))
	require.NoError(t, err)
	assert.Len(t, f.Operations, 3)
}

func TestParseOperations_Invalid(t *testing.T) {
	tests := map[string]string{
		"no name":         "operations:\n  - paths: [/a]\n",
		"duplicate":       "operations:\n  - {name: a, paths: [/a]}\n  - {name: a, paths: [/b]}\n",
		"reserved":        "operations:\n  - {name: authflow.health, paths: [/a]}\n",
		"no paths":        "operations:\n  - {name: a}\n",
		"relative path":   "operations:\n  - {name: a, paths: [a]}\n",
		"unknown action":  "operations:\n  - {name: a, paths: [/a], action: allow}\n",
		"unknown method":  "operations:\n  - {name: a, paths: [/a], methods: [FETCH]}\n",
		"unknown field":   "operations:\n  - {name: a, paths: [/a], strategy: basic}\n",
		"skipped default": "default:\n  skip: true\n",
		"not yaml":        "operations: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOperations([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseOperations_Empty(t *testing.T) {
	f, err := ParseOperations([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, f.Operations)
	assert.Nil(t, f.Default)
}
