package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// Keys that never carry credentials. Matching is case-insensitive.
var plainKeys = map[string]struct{}{
	"component": {},
	"operation": {},
	"code":      {},
	"kind":      {},
	"reason":    {},
	"error":     {},
	"escrowid":  {},
	"streamid":  {},
	"requestid": {},
	"path":      {},
	"method":    {},
}

func isPlain(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField redacts value unless key is known to be safe.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || isPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// Principal renders a gateway principal for logs. Token subjects ("sub:...")
// are public addresses and stay readable; API keys ("key:...") are masked.
func Principal(principal string) slog.Attr {
	if strings.HasPrefix(principal, "key:") {
		return slog.String("principal", "key:"+RedactedValue)
	}
	return slog.String("principal", principal)
}
