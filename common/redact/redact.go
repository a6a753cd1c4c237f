// Package redact provides helpers for stripping sensitive values from log
// output before it leaves the process boundary.
//
// # Threat model
//
// API keys handed to the backend for credential injection must never appear
// in:
//   - Log lines emitted by the backend
//   - Events forwarded to the UI event sink
//   - The per-session RPC audit log
//
// Redaction is best-effort: it operates on string representations and relies
// on callers to pass the right set of sensitive terms. It is NOT a substitute
// for keeping secrets out of log call-sites in the first place.
package redact

import (
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid spurious
// redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// MaskKey renders an API key for log output. Only the first four and last
// four characters are shown; keys of 12 characters or fewer are fully masked
// and an empty key is called out as such, so a log line never narrows the
// search space for a short credential.
func MaskKey(key string) string {
	switch {
	case key == "":
		return "(empty)"
	case len(key) <= 12:
		return "***"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}

// Map returns a shallow copy of m with values replaced by [REDACTED] for
// every key whose name suggests it contains a secret (password, token, key,
// secret, credential, auth). Non-string values are left unchanged.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			if str, ok := v.(string); ok && str != "" {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

// isSensitiveKey returns true when the key name suggests it holds a secret.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "key", "credential", "auth", "apikey"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
