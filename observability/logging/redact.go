package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys that name ledger facts and request metadata. MaskField emits these
// verbatim; everything else it masks.
var allowlisted = map[string]struct{}{
	"service": {}, "env": {}, "message": {}, "severity": {}, "timestamp": {},
	"error": {}, "reason": {}, "component": {},
	"action": {}, "asset": {}, "user": {}, "borrower": {}, "liquidator": {},
	"path": {}, "route": {}, "method": {}, "status": {},
}

// Fragments that mark a key as secret wherever it appears.
var sensitiveFragments = []string{"secret", "token", "password", "authorization", "signature", "apikey", "api_key"}

func IsAllowlisted(key string) bool {
	_, ok := allowlisted[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// MaskField builds an attribute that is redacted unless key is allowlisted.
// Empty values pass through so missing fields stay visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr masks string attributes whose key looks secret. It runs on every
// record so a stray slog.String("hmacSecret", ...) never reaches the sink.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || attr.Value.String() == "" {
		return attr
	}
	if isSensitive(attr.Key) {
		return slog.String(attr.Key, RedactedValue)
	}
	return attr
}
