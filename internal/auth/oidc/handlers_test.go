package oidc

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"authflow/internal/observability/logging"
)

const testIssuer = "https://idp.example"

type testProvider struct {
	flow       *Flow
	codec      *SessionCodec
	tokenCalls  int
	lastForm    url.Values
	failRefresh bool
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tp := &testProvider{}
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		tp.tokenCalls++
		tp.lastForm = r.PostForm

		refreshToken := "refresh"
		if r.PostForm.Get("grant_type") == "refresh_token" {
			if tp.failRefresh {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			refreshToken = "rotated"
		}

		idToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
			"iss":   testIssuer,
			"sub":   "u1",
			"aud":   "authflow",
			"email": "u1@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}).SignedString(key)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":       "access",
			"refresh_token":      refreshToken,
			"token_type":         "Bearer",
			"expires_in":         300,
			"refresh_expires_in": 1800,
			"id_token":           idToken,
		})
	}))
	t.Cleanup(tokenServer.Close)

	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: "authflow"})
	codec, err := NewSessionCodec("", testSecret)
	require.NoError(t, err)

	flow, err := NewWithProvider(Config{
		ClientID:     "authflow",
		ClientSecret: "secret",
		RedirectURL:  "https://authflow.local/auth/callback",
	}, oauth2.Endpoint{
		AuthURL:  testIssuer + "/authorize",
		TokenURL: tokenServer.URL + "/token",
	}, verifier, codec, logging.NewNop(), nil)
	require.NoError(t, err)

	tp.flow = flow
	tp.codec = codec
	return tp
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLogin(t *testing.T) {
	tp := newTestProvider(t)
	rec := httptest.NewRecorder()

	tp.flow.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?next=/widgets", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example", location.Host)
	assert.Equal(t, "S256", location.Query().Get("code_challenge_method"))
	assert.Equal(t, "authflow", location.Query().Get("client_id"))

	cookies := cookieMap(rec)
	require.Contains(t, cookies, stateCookie)
	assert.Equal(t, location.Query().Get("state"), cookies[stateCookie].Value)
	assert.Equal(t, "/widgets", cookies[originCookie].Value)
	assert.NotEmpty(t, cookies[verifierCookie].Value)
}

func TestLogin_RejectsOffsiteRedirect(t *testing.T) {
	tp := newTestProvider(t)
	rec := httptest.NewRecorder()

	tp.flow.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?next=//evil.example", nil))

	assert.Equal(t, "/", cookieMap(rec)[originCookie].Value)
}

func callbackRequest(target, state, verifier, origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if state != "" {
		r.AddCookie(&http.Cookie{Name: stateCookie, Value: state})
	}
	if verifier != "" {
		r.AddCookie(&http.Cookie{Name: verifierCookie, Value: verifier})
	}
	if origin != "" {
		r.AddCookie(&http.Cookie{Name: originCookie, Value: origin})
	}
	return r
}

func TestCallback(t *testing.T) {
	tp := newTestProvider(t)
	rec := httptest.NewRecorder()

	tp.flow.Callback(rec, callbackRequest("/auth/callback?state=s1&code=c1", "s1", "v1", "/widgets"))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/widgets", rec.Header().Get("Location"))
	assert.Equal(t, 1, tp.tokenCalls)
	assert.Equal(t, "c1", tp.lastForm.Get("code"))
	assert.Equal(t, "v1", tp.lastForm.Get("code_verifier"))

	sessionCookie := cookieMap(rec)[DefaultCookieName]
	require.NotNil(t, sessionCookie)
	session, err := tp.codec.Decode(sessionCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.Subject)
	assert.Equal(t, "u1@example.com", session.Email)
	assert.Equal(t, "refresh", session.RefreshToken)
	assert.InDelta(t, 1800, sessionCookie.MaxAge, 5)
}

func TestCallback_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		request *http.Request
	}{
		{"missing state", callbackRequest("/auth/callback?code=c1", "s1", "v1", "")},
		{"state mismatch", callbackRequest("/auth/callback?state=other&code=c1", "s1", "v1", "")},
		{"no state cookie", callbackRequest("/auth/callback?state=s1&code=c1", "", "v1", "")},
		{"no verifier", callbackRequest("/auth/callback?state=s1&code=c1", "s1", "", "")},
		{"no code", callbackRequest("/auth/callback?state=s1", "s1", "v1", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := newTestProvider(t)
			rec := httptest.NewRecorder()

			tp.flow.Callback(rec, tt.request)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, tp.tokenCalls)
			assert.NotContains(t, cookieMap(rec), DefaultCookieName)
		})
	}
}

func TestLogout(t *testing.T) {
	tp := newTestProvider(t)
	rec := httptest.NewRecorder()

	tp.flow.Logout(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, -1, cookieMap(rec)[DefaultCookieName].MaxAge)
}

func TestCallbackPath(t *testing.T) {
	assert.Equal(t, "/auth/callback", extractCallbackPath("https://authflow.local/auth/callback"))
	assert.Equal(t, DefaultCallbackPath, extractCallbackPath("https://authflow.local"))
	assert.Equal(t, "/oidc/cb", extractCallbackPath("/oidc/cb"))
}
