package auth

import (
	"fmt"
	"time"

	"golang.org/x/exp/maps"
)

// Options is a strategy option mapping
type Options map[string]interface{}

// MergeOptions returns a new mapping holding defaults overlaid with overrides.
// Keys present in overrides replace those in defaults. Neither input is modified.
func MergeOptions(defaults, overrides Options) Options {
	merged := make(Options, len(defaults)+len(overrides))
	maps.Copy(merged, defaults)
	maps.Copy(merged, overrides)
	return merged
}

// String returns the string value for key, or def if it is missing or not a string
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the boolean value for key, or def if it is missing or not a bool
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// StringSlice returns the value for key as a string slice.
// A single string is returned as a one-element slice.
func (o Options) StringSlice(key string) []string {
	switch v := o[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// Duration returns the value for key as a duration. Strings are parsed with
// time.ParseDuration; integers are treated as seconds.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	switch v := o[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	}
	return def
}
