package core

import (
	"net/url"
	"strings"
)

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap returns a copy of fields with credential-like keys
// masked. Nested maps and slices are walked.
func RedactSensitiveMap(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(fields)
}

// RedactURL strips user info and masks query values of a notification URL.
// Merchants commonly put shared secrets in callback query strings.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return RedactedValue
	}
	if parsed.User != nil {
		parsed.User = url.User(RedactedValue)
	}
	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, RedactedValue)
		}
		parsed.RawQuery = query.Encode()
	}
	parsed.Fragment = ""
	return parsed.String()
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		switch {
		case shouldRedactKey(key):
			target[key] = RedactedValue
		case isURLKey(key):
			if text, ok := value.(string); ok {
				target[key] = RedactURL(text)
				continue
			}
			target[key] = redactSensitiveValue(value)
		default:
			target[key] = redactSensitiveValue(value)
		}
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

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"credential",
		"signature",
		"refund_email",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isURLKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	return key == "url" || strings.HasSuffix(key, "_url")
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "job_id",
		"invoice_id",
		"idempotency_key",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
