package oidc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSessionCodec_RoundTrip(t *testing.T) {
	codec, err := NewSessionCodec("", testSecret)
	require.NoError(t, err)
	assert.Equal(t, DefaultCookieName, codec.CookieName())

	session := Session{Subject: "u1", Email: "u1@example.com", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	value, err := codec.Encode(session)
	require.NoError(t, err)
	assert.NotContains(t, value, "u1@example.com")

	decoded, err := codec.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, session.Subject, decoded.Subject)
	assert.True(t, session.Expiry.Equal(decoded.Expiry))
}

func TestSessionCodec_Tampering(t *testing.T) {
	codec, err := NewSessionCodec("session", testSecret)
	require.NoError(t, err)
	other, err := NewSessionCodec("session", "fedcba9876543210fedcba9876543210")
	require.NoError(t, err)
	renamed, err := NewSessionCodec("other_session", testSecret)
	require.NoError(t, err)

	value, err := codec.Encode(Session{Subject: "u1"})
	require.NoError(t, err)

	_, err = other.Decode(value)
	assert.Error(t, err, "different key")
	_, err = renamed.Decode(value)
	assert.Error(t, err, "cookie name is authenticated data")
	_, err = codec.Decode("!!!")
	assert.Error(t, err)
	_, err = codec.Decode("AAAA")
	assert.Error(t, err)
}

func TestSessionCodec_WriteRead(t *testing.T) {
	codec, err := NewSessionCodec("session", testSecret)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, codec.Write(rec, Session{Subject: "u1"}, time.Hour, true))
	assert.Error(t, codec.Write(httptest.NewRecorder(), Session{}, 0, true))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	session, err := codec.Read(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.Subject)

	_, err = codec.Read(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, http.ErrNoCookie)
}

func TestNewSessionCodec_BadSecret(t *testing.T) {
	_, err := NewSessionCodec("", "short")
	assert.Error(t, err)
}
