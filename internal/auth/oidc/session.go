package oidc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCookieName is the session cookie name used when none is configured
const DefaultCookieName = "authflow_session"

// Session holds the user's session information
type Session struct {
	Subject            string    `json:"subject"`
	Name               string    `json:"name,omitempty"`
	Email              string    `json:"email,omitempty"`
	RefreshToken       string    `json:"refresh_token,omitempty"`
	Expiry             time.Time `json:"expiry"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
}

// SessionCodec seals sessions into AES-GCM encrypted cookies
type SessionCodec struct {
	name string
	aead cipher.AEAD
}

// NewSessionCodec creates a codec. The secret must be 16, 24 or 32 bytes.
func NewSessionCodec(cookieName, secret string) (*SessionCodec, error) {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("invalid session cookie secret: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SessionCodec{name: cookieName, aead: gcm}, nil
}

// CookieName returns the session cookie name
func (c *SessionCodec) CookieName() string {
	return c.name
}

// Encode seals a session into a cookie value
func (c *SessionCodec) Encode(session Session) (string, error) {
	plaintext, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session data: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(c.name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a cookie value produced by Encode
func (c *SessionCodec) Decode(value string) (*Session, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session cookie: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("encrypted data too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(c.name))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session data: %w", err)
	}

	var session Session
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return &session, nil
}

// Read returns the session carried by r, or http.ErrNoCookie
func (c *SessionCodec) Read(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return nil, err
	}
	return c.Decode(cookie.Value)
}

// Write stores the session in a cookie that lives until maxAge
func (c *SessionCodec) Write(w http.ResponseWriter, session Session, maxAge time.Duration, secure bool) error {
	if maxAge <= 0 {
		return fmt.Errorf("invalid cookie expiration time")
	}

	value, err := c.Encode(session)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
	return nil
}

// Clear removes the session cookie
func (c *SessionCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
