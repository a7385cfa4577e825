package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
)

func newStrategy(t *testing.T, config Config) *Strategy {
	t.Helper()
	s, err := New([]Key{
		{ID: "ci", Subject: "svc-ci", Hash: HashKey("ci-secret"), Scopes: []string{"deploy"}},
		{ID: "reader", Hash: HashKey("read-secret")},
	}, config, logging.NewNop())
	require.NoError(t, err)
	return s
}

func TestAuthenticate(t *testing.T) {
	s := newStrategy(t, Config{QueryParam: "api_key"})

	tests := []struct {
		name        string
		header      string
		headerValue string
		target      string
		opts        auth.Options
		wantSubject string
		wantCode    auth.Code
	}{
		{name: "no key", target: "/"},
		{name: "header key", header: DefaultHeader, headerValue: "ci-secret", target: "/", wantSubject: "svc-ci"},
		{name: "subject defaults to id", header: DefaultHeader, headerValue: "read-secret", target: "/", wantSubject: "reader"},
		{name: "query key", target: "/?api_key=ci-secret", wantSubject: "svc-ci"},
		{name: "unknown key", header: DefaultHeader, headerValue: "wrong", target: "/", wantCode: auth.CodeInvalidCredentials},
		{name: "custom header", header: "X-Token", headerValue: "ci-secret", target: "/", opts: auth.Options{OptionHeader: "X-Token"}, wantSubject: "svc-ci"},
		{name: "default header ignored after override", header: DefaultHeader, headerValue: "ci-secret", target: "/", opts: auth.Options{OptionHeader: "X-Token"}},
		{name: "scope held", header: DefaultHeader, headerValue: "ci-secret", target: "/", opts: auth.Options{OptionScopes: []interface{}{"deploy"}}, wantSubject: "svc-ci"},
		{name: "scope missing", header: DefaultHeader, headerValue: "read-secret", target: "/", opts: auth.Options{OptionScopes: "deploy"}, wantCode: auth.CodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.headerValue)
			}

			id, err := s.Authenticate(context.Background(), r, auth.MergeOptions(s.DefaultOptions(), tt.opts))

			if tt.wantCode != "" {
				assert.Nil(t, id)
				assert.Equal(t, tt.wantCode, auth.CodeOf(err))
				return
			}
			require.NoError(t, err)
			if tt.wantSubject == "" {
				assert.Nil(t, id)
				return
			}
			assert.Equal(t, tt.wantSubject, id.Subject)
		})
	}
}

func TestNew_InvalidDigest(t *testing.T) {
	_, err := New([]Key{{ID: "bad", Hash: "not-hex"}}, Config{}, logging.NewNop())
	assert.Error(t, err)
}

func TestLoadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	content := "keys:\n  - id: ci\n    subject: svc-ci\n    sha256: " + HashKey("ci-secret") + "\n    scopes: [deploy]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	keys, err := LoadKeys(path)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "svc-ci", keys[0].Subject)
	assert.Equal(t, []string{"deploy"}, keys[0].Scopes)

	s, err := New(keys, Config{}, logging.NewNop())
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(DefaultHeader, "ci-secret")
	id, err := s.Authenticate(context.Background(), r, s.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "svc-ci", id.Subject)
}
