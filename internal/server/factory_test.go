package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authflow/internal/auth"
	"authflow/internal/config"
	"authflow/internal/httputils"
	"authflow/internal/observability"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
	"authflow/internal/proxy/router"
	"authflow/internal/userstore"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Subject", r.Header.Get(router.HeaderSubject))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)
	upstreamURL, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	hash, err := userstore.HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	usersFile := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(usersFile, []byte(fmt.Sprintf("users:\n  - username: alice\n    password_hash: %q\n", hash)), 0o600))

	cfg := &config.Config{}
	cfg.Upstream.URL = upstreamURL
	cfg.Upstream.Timeout = 5 * time.Second
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Auth.Basic.Enabled = true
	cfg.Auth.Basic.Realm = "widgets"
	cfg.Auth.Basic.UsersFile = usersFile
	cfg.DefaultAuthentication = &auth.Requirement{Strategies: []string{"basic"}}
	cfg.Operations = []config.Operation{
		{Name: "widgets.list", Action: config.ActionProxy, Paths: []string{"/api/widgets"}, Methods: []string{http.MethodGet}, Authentication: &auth.Requirement{Skip: true}},
		{Name: "widgets.create", Action: config.ActionProxy, Paths: []string{"/api/widgets"}, Methods: []string{http.MethodPost}},
		{Name: "widgets.delete", Action: config.ActionProxy, Paths: []string{"/api/widgets"}, Methods: []string{http.MethodDelete},
			Authentication: &auth.Requirement{Strategies: []string{"basic"}, Options: auth.Options{"roles": []string{"admin"}}}},
		{Name: "reports", Action: config.ActionProxy, Paths: []string{"/api/reports"}, Authentication: &auth.Requirement{Strategies: []string{"ghost"}}},
		{Name: "admin", Action: config.ActionDeny, Paths: []string{"/admin"}, MatchPrefix: true},
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	obs := &observability.Provider{Logger: logging.NewNop(), Metrics: metrics.NewCollector()}
	srv, err := newServer(context.Background(), cfg, obs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func TestServer_EndToEnd(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t))

	tests := []struct {
		name          string
		method        string
		path          string
		user          string
		password      string
		wantStatus    int
		wantCode      string
		wantSubject   string
		wantChallenge string
	}{
		{name: "health is public", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "skipped operation is public", method: http.MethodGet, path: "/api/widgets", wantStatus: http.StatusOK},
		{name: "default requirement without credentials", method: http.MethodPost, path: "/api/widgets",
			wantStatus: http.StatusUnauthorized, wantCode: string(auth.CodeUserProfileNotFound), wantChallenge: `Basic realm="widgets"`},
		{name: "wrong password", method: http.MethodPost, path: "/api/widgets", user: "alice", password: "nope",
			wantStatus: http.StatusUnauthorized, wantCode: string(auth.CodeInvalidCredentials)},
		{name: "authenticated", method: http.MethodPost, path: "/api/widgets", user: "alice", password: "s3cret",
			wantStatus: http.StatusOK, wantSubject: "alice"},
		{name: "missing role", method: http.MethodDelete, path: "/api/widgets", user: "alice", password: "s3cret",
			wantStatus: http.StatusForbidden, wantCode: string(auth.CodeAccessDenied)},
		{name: "unregistered strategy", method: http.MethodGet, path: "/api/reports", user: "alice", password: "s3cret",
			wantStatus: http.StatusUnauthorized, wantCode: string(auth.CodeStrategyNotFound)},
		{name: "denied operation", method: http.MethodDelete, path: "/admin/users", user: "alice", password: "s3cret",
			wantStatus: http.StatusForbidden, wantCode: httputils.CodeForbidden},
		{name: "unmatched path", method: http.MethodGet, path: "/nowhere",
			wantStatus: http.StatusNotFound, wantCode: httputils.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(observability.RequestIDHeader))
			if tt.wantCode != "" {
				var body httputils.ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Error.Code)
			}
			if tt.wantChallenge != "" {
				assert.Equal(t, tt.wantChallenge, rec.Header().Get("WWW-Authenticate"))
			}
			assert.Equal(t, tt.wantSubject, rec.Header().Get("X-Seen-Subject"))
		})
	}
}

func TestServer_InvalidDeclarations(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Operations[1].Authentication = &auth.Requirement{}

	obs := &observability.Provider{Logger: logging.NewNop(), Metrics: metrics.NewCollector()}
	_, err := newServer(context.Background(), cfg, obs)
	assert.Error(t, err)
}

func TestServer_BuiltinsArePublic(t *testing.T) {
	table, err := buildDeclarations(&config.Config{DefaultAuthentication: &auth.Requirement{Strategies: []string{"jwt"}}},
		[]router.Builtin{{Name: config.OperationHealth}})
	require.NoError(t, err)

	_, ok := table.RequirementFor(config.OperationHealth)
	assert.False(t, ok)

	req, ok := table.RequirementFor("anything.else")
	require.True(t, ok)
	assert.Equal(t, []string{"jwt"}, req.Strategies)
}
