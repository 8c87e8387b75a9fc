package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap copies fields, masking values whose key looks like a
// credential. Nested maps and slices are walked.
func RedactSensitiveMap(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(fields)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"refresh",
	"credential",
	"cookie",
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isLedgerKey(key) {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

// isLedgerKey lists the operation fields the observer always emits.
func isLedgerKey(key string) bool {
	switch key {
	case "operation",
		"module",
		"record_id",
		"status",
		"code",
		"error_type",
		"duration_ms",
		"issued_at",
		"expires_at",
		"validity_seconds",
		"request_id":
		return true
	default:
		return false
	}
}
