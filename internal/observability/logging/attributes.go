package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedURL wraps a url.URL for logging without exposing sensitive information
type RedactedURL struct {
	url *url.URL
}

// LogValue implements slog.LogValuer to avoid revealing passwords
func (u RedactedURL) LogValue() slog.Value {
	if u.url == nil {
		return slog.StringValue("")
	}
	return slog.StringValue(u.url.Redacted())
}

// RedactURL returns a safely loggable URL value
func RedactURL(url *url.URL) RedactedURL {
	return RedactedURL{url: url}
}

// RedactedStringURL is a string containing a URL for safe logging
type RedactedStringURL string

// LogValue implements slog.LogValuer to avoid revealing passwords
func (s RedactedStringURL) LogValue() slog.Value {
	u, err := url.Parse(string(s))
	if err != nil {
		return slog.StringValue(string(s))
	}
	return slog.StringValue(u.Redacted())
}

// RedactStringURL returns a safely loggable URL string, e.g. a database DSN
func RedactStringURL(s string) slog.LogValuer {
	return RedactedStringURL(s)
}

// MaskedSecret renders only the first characters of a credential
type MaskedSecret string

// LogValue implements slog.LogValuer
func (s MaskedSecret) LogValue() slog.Value {
	if len(s) <= 4 {
		return slog.StringValue(strings.Repeat("*", len(s)))
	}
	return slog.StringValue(string(s[:4]) + "****")
}
