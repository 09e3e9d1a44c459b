package providers

import (
	"fmt"
	"time"
)

// Option extraction helpers shared by the built-in adapters. Options come
// from YAML, so numeric values may arrive as int, float64, or string
// forms depending on how the document was written.

// optString returns the string option under key, or def when absent.
func optString(opts map[string]any, key, def string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// optInt returns the integer option under key, or def when absent or not
// numeric.
func optInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// optFloat returns the float option under key, or def when absent or not
// numeric.
func optFloat(opts map[string]any, key string, def float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// optDuration reads a seconds-valued option and returns it as a duration,
// or def when absent.
func optDuration(opts map[string]any, key string, def time.Duration) time.Duration {
	if secs := optFloat(opts, key, -1); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// optStringSlice returns the string-slice option under key. YAML decodes
// sequences as []any, so both forms are accepted.
func optStringSlice(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// optMapSlice returns the list-of-maps option under key, used for inline
// document corpora.
func optMapSlice(opts map[string]any, key string) ([]map[string]any, error) {
	raw, ok := opts[key]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("option %q must be a list", key)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("option %q entry %d must be a mapping", key, i)
		}
		out = append(out, m)
	}
	return out, nil
}
