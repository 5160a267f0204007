package masking

import "strings"

const redacted = "****"

// Prefixes that identify the vendor and kind of a key. They stay readable.
var knownPrefixes = []string{
	"sk-ant-api03-",
	"sk-ant-",
	"sk-proj-",
	"sk_live_",
	"sk_test_",
	"rk_live_",
	"rk_test_",
	"whsec_",
	"AIza",
}

var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"client_secret": {},
	"password":      {},
	"secret":        {},
	"token":         {},
}

// MaskSecret keeps a known vendor prefix and, for secrets long enough that it
// gives nothing away, the last four characters.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	prefix := ""
	for _, p := range knownPrefixes {
		if strings.HasPrefix(value, p) && len(value) > len(p) {
			prefix = p
			break
		}
	}
	rest := value[len(prefix):]
	if len(rest) < 8 {
		return prefix + redacted
	}
	return prefix + redacted + rest[len(rest)-4:]
}

// MaskJSON copies input, masking every string under a sensitive key at any
// depth. Blank keys are dropped.
func MaskJSON(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = mask(value, Sensitive(key))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Sensitive reports whether values under key must be masked.
func Sensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	return strings.HasSuffix(key, "_key") ||
		strings.HasSuffix(key, "_secret") ||
		strings.HasSuffix(key, "_token")
}

func mask(value any, sensitive bool) any {
	switch v := value.(type) {
	case string:
		if sensitive {
			return MaskSecret(v)
		}
		return v
	case map[string]any:
		return MaskJSON(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return MaskJSON(m)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = mask(item, sensitive)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = mask(item, sensitive)
		}
		return out
	default:
		return value
	}
}
