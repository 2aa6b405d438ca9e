package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of any attribute whose key names a
// credential.
const RedactedValue = "[REDACTED]"

// credentialMarkers match sensitive keys by substring, case-insensitively.
var credentialMarkers = []string{
	"authorization",
	"token",
	"secret",
	"password",
	"api_key",
	"api-key",
	"apikey",
	"cookie",
	"dsn",
}

// plainKeys contain a marker but never carry a credential.
var plainKeys = map[string]struct{}{
	"tokens":       {},
	"stake_token":  {},
	"reward_token": {},
	"token_type":   {},
}

// sensitive reports whether values logged under key are masked.
func sensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := plainKeys[normalized]; ok {
		return false
	}
	for _, marker := range credentialMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// redact masks credential attributes. Empty strings pass through so a missing
// header still reads as missing.
func redact(attr slog.Attr) slog.Attr {
	if !sensitive(attr.Key) {
		return attr
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindString && strings.TrimSpace(value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
