package oidc

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
)

// OperationRefresh labels session refresh outcomes in metrics
const OperationRefresh = "oidc.refresh"

type sessionContextKey struct{}

func withRefreshedSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// refreshedSession returns the session renewed for this request, if any
func refreshedSession(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey{}).(*Session)
	return session
}

// RefreshMiddleware renews sessions whose access token has expired while the
// refresh token is still valid. The renewed session is written back to the
// cookie and handed to the session strategy for the current request. Sessions
// that cannot be renewed are cleared.
func (f *Flow) RefreshMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := f.codec.Read(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		logger := logging.FromContextOr(ctx, f.logger)
		now := f.now()

		// Check if the session has ended entirely
		if !session.RefreshTokenExpiry.IsZero() && now.After(session.RefreshTokenExpiry) {
			logger.Debug("Refresh token expired, clearing session", "subject", session.Subject)
			f.codec.Clear(w)
			next.ServeHTTP(w, r)
			return
		}

		if session.Expiry.IsZero() || !now.After(session.Expiry) || session.RefreshToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger.Debug("Access token expired, attempting refresh", "subject", session.Subject)
		token, err := f.config.TokenSource(ctx, &oauth2.Token{RefreshToken: session.RefreshToken}).Token()
		if err != nil {
			logger.Warn("Session refresh failed, clearing session", "subject", session.Subject, logging.Err(err))
			f.recordAs(OperationRefresh, metrics.OutcomeError)
			f.codec.Clear(w)
			next.ServeHTTP(w, r)
			return
		}

		session.Expiry = token.Expiry
		// Rotate the refresh token when the provider issues a new one
		if token.RefreshToken != "" {
			session.RefreshToken = token.RefreshToken
		}
		if token.Extra("refresh_expires_in") != nil {
			session.RefreshTokenExpiry = now.Add(refreshExpiresIn(token, f.sessionTTL))
		}
		if session.RefreshTokenExpiry.IsZero() {
			session.RefreshTokenExpiry = now.Add(f.sessionTTL)
		}
		if session.Expiry.IsZero() {
			session.Expiry = session.RefreshTokenExpiry
		}

		if err := f.codec.Write(w, *session, session.RefreshTokenExpiry.Sub(now), r.TLS != nil); err != nil {
			logger.Error("Failed to save refreshed session", logging.Err(err))
			f.codec.Clear(w)
			next.ServeHTTP(w, r)
			return
		}

		logger.Debug("Session refreshed", "subject", session.Subject, "expiry", session.Expiry)
		f.recordAs(OperationRefresh, metrics.OutcomeAuthenticated)
		next.ServeHTTP(w, r.WithContext(withRefreshedSession(ctx, session)))
	})
}
