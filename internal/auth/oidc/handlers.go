package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"authflow/internal/httputils"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
)

// Built-in route paths
const (
	DefaultLoginPath    = "/auth/login"
	DefaultCallbackPath = "/auth/callback"
	DefaultLogoutPath   = "/auth/logout"
)

const (
	stateCookie    = "oidc_state"
	verifierCookie = "oidc_code_verifier"
	originCookie   = "oidc_origin_url"

	defaultSessionTTL = 30 * time.Minute
)

// Config holds OIDC flow configuration
type Config struct {
	// Issuer is the OIDC issuer URL
	Issuer string

	// ClientID is the OIDC client ID
	ClientID string

	// ClientSecret is the OIDC client secret
	ClientSecret string

	// RedirectURL is the redirect URL for OIDC authentication
	RedirectURL string

	// Scopes is a list of OIDC scopes to request
	Scopes []string

	// CookieName is the name of the session cookie
	CookieName string

	// CookieSecret is the secret key for cookie encryption
	CookieSecret string

	// SessionTTL bounds the session when the provider sends no refresh expiry
	SessionTTL time.Duration
}

// TokenVerifier verifies a raw ID token
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Flow serves the login, callback and logout endpoints
type Flow struct {
	config     oauth2.Config
	verifier   TokenVerifier
	codec      *SessionCodec
	sessionTTL time.Duration
	logger     *logging.Logger
	metrics    *metrics.Collector
	now        func() time.Time
}

// New discovers the provider and creates the sign-in flow
func New(ctx context.Context, config Config, codec *SessionCodec, logger *logging.Logger, metrics *metrics.Collector) (*Flow, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("OIDC flow requires an issuer")
	}

	logger.Debug("Initializing OIDC provider", "issuer", config.Issuer)
	provider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})
	return NewWithProvider(config, provider.Endpoint(), verifier, codec, logger, metrics)
}

// NewWithProvider creates the flow from explicit endpoints and verifier
func NewWithProvider(config Config, endpoint oauth2.Endpoint, verifier TokenVerifier, codec *SessionCodec, logger *logging.Logger, metrics *metrics.Collector) (*Flow, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC flow requires clientID and clientSecret")
	}
	if config.RedirectURL == "" {
		return nil, fmt.Errorf("OIDC flow requires a redirect URL")
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	ttl := config.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &Flow{
		config: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
		verifier:   verifier,
		codec:      codec,
		sessionTTL: ttl,
		logger:     logger.WithModule("auth.oidc"),
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// CallbackPath returns the path component of the redirect URL
func (f *Flow) CallbackPath() string {
	return extractCallbackPath(f.config.RedirectURL)
}

// Login starts the authorization code flow. The "next" query parameter
// names the local path to return to.
func (f *Flow) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContextOr(r.Context(), f.logger)

	state, err := randomString(24)
	if err != nil {
		logger.Error("Failed to generate state parameter", logging.Err(err))
		httputils.WriteError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Internal error")
		return
	}
	codeVerifier := oauth2.GenerateVerifier()

	setTempCookie(w, r, stateCookie, state)
	setTempCookie(w, r, verifierCookie, codeVerifier)
	setTempCookie(w, r, originCookie, safeRedirect(r.URL.Query().Get("next")))

	authURL := f.config.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
	logger.Info("Redirecting to OIDC provider for authentication")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the flow and stores the session cookie
func (f *Flow) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContextOr(ctx, f.logger)

	fail := func(status int, message string, err error) {
		logger.Error("OIDC callback failed", "reason", message, logging.Err(err))
		f.record(metrics.OutcomeError)
		httputils.WriteError(w, status, "LOGIN_FAILED", message)
	}

	state := r.URL.Query().Get("state")
	stateC, err := r.Cookie(stateCookie)
	if state == "" || err != nil || stateC.Value != state {
		fail(http.StatusBadRequest, "State mismatch", err)
		return
	}

	verifierC, err := r.Cookie(verifierCookie)
	if err != nil {
		fail(http.StatusBadRequest, "Code verifier not found", err)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		fail(http.StatusBadRequest, "No code received", nil)
		return
	}

	token, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(verifierC.Value))
	if err != nil {
		fail(http.StatusBadGateway, "Failed to exchange token", err)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		fail(http.StatusBadGateway, "No ID token in OAuth2 token", nil)
		return
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		fail(http.StatusUnauthorized, "Failed to verify ID token", err)
		return
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email,omitempty"`
		Name    string `json:"name,omitempty"`
	}
	if err := idToken.Claims(&claims); err != nil {
		fail(http.StatusBadGateway, "Failed to parse claims", err)
		return
	}

	session := Session{
		Subject:      claims.Subject,
		Name:         claims.Name,
		Email:        claims.Email,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	session.RefreshTokenExpiry = f.now().Add(refreshExpiresIn(token, f.sessionTTL))
	if session.Expiry.IsZero() {
		session.Expiry = session.RefreshTokenExpiry
	}

	if err := f.codec.Write(w, session, session.RefreshTokenExpiry.Sub(f.now()), r.TLS != nil); err != nil {
		fail(http.StatusInternalServerError, "Failed to save session", err)
		return
	}

	logger.Info("Session established", "subject", claims.Subject)
	f.record(metrics.OutcomeAuthenticated)

	origin := "/"
	if c, err := r.Cookie(originCookie); err == nil {
		origin = safeRedirect(c.Value)
	}
	clearTempCookies(w)
	http.Redirect(w, r, origin, http.StatusSeeOther)
}

// Logout clears the session and returns to the root path
func (f *Flow) Logout(w http.ResponseWriter, r *http.Request) {
	f.codec.Clear(w)
	http.Redirect(w, r, safeRedirect(r.URL.Query().Get("next")), http.StatusSeeOther)
}

func (f *Flow) record(outcome string) {
	f.recordAs("oidc.callback", outcome)
}

func (f *Flow) recordAs(operation, outcome string) {
	if f.metrics != nil {
		f.metrics.RecordAuthentication(operation, Name, outcome)
	}
}

// refreshExpiresIn reads the provider's refresh_expires_in extra, falling back to def
func refreshExpiresIn(token *oauth2.Token, def time.Duration) time.Duration {
	v := token.Extra("refresh_expires_in")
	if v == nil {
		return def
	}
	seconds, err := strconv.Atoi(fmt.Sprintf("%v", v))
	if err != nil || seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

// safeRedirect only allows local absolute paths
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func setTempCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
}

func clearTempCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, verifierCookie, originCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
	}
}

// extractCallbackPath extracts the path component from a URL
func extractCallbackPath(urlStr string) string {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Path == "" || parsedURL.Path == "/" {
		return DefaultCallbackPath
	}
	return parsedURL.Path
}

func randomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
