package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/observability/logging"
)

func requestWithSession(t *testing.T, codec *SessionCodec, session Session) *http.Request {
	t.Helper()
	value, err := codec.Encode(session)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: codec.CookieName(), Value: value})
	return r
}

func TestStrategy_Authenticate(t *testing.T) {
	codec, err := NewSessionCodec("", testSecret)
	require.NoError(t, err)
	s := NewStrategy(codec, "", logging.NewNop())

	garbled := httptest.NewRequest(http.MethodGet, "/", nil)
	garbled.AddCookie(&http.Cookie{Name: codec.CookieName(), Value: "garbage"})

	tests := []struct {
		name        string
		request     *http.Request
		wantSubject string
	}{
		{name: "no cookie", request: httptest.NewRequest(http.MethodGet, "/", nil)},
		{name: "garbled cookie", request: garbled},
		{name: "expired", request: requestWithSession(t, codec, Session{Subject: "u1", Expiry: time.Now().Add(-time.Minute)})},
		{name: "access expired without refresh", request: requestWithSession(t, codec, Session{Subject: "u1", RefreshToken: "rt", Expiry: time.Now().Add(-time.Minute), RefreshTokenExpiry: time.Now().Add(time.Hour)})},
		{name: "refresh window ended", request: requestWithSession(t, codec, Session{Subject: "u1", Expiry: time.Now().Add(time.Hour), RefreshTokenExpiry: time.Now().Add(-time.Minute)})},
		{name: "valid", request: requestWithSession(t, codec, Session{Subject: "u1", Email: "u1@example.com", Expiry: time.Now().Add(time.Hour)}), wantSubject: "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.Authenticate(context.Background(), tt.request, s.DefaultOptions())
			require.NoError(t, err)
			if tt.wantSubject == "" {
				assert.Nil(t, id)
				return
			}
			assert.Equal(t, tt.wantSubject, id.Subject)
			assert.Equal(t, Name, id.Provider)
		})
	}
}

func TestStrategy_Challenge(t *testing.T) {
	codec, err := NewSessionCodec("", testSecret)
	require.NoError(t, err)
	s := NewStrategy(codec, "/signin", logging.NewNop())
	assert.Equal(t, `Cookie realm="authflow", login="/signin"`, s.Challenge(s.DefaultOptions()))
}
