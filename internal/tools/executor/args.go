package executor

import (
	"strings"
	"time"
)

// Accessors for arguments that passed schema validation. Numbers arrive as
// float64 from JSON but Go callers may pass ints.

func stringArg(input map[string]any, name string) string {
	s, _ := input[name].(string)
	return s
}

func stringArgOr(input map[string]any, name, def string) string {
	if s := strings.TrimSpace(stringArg(input, name)); s != "" {
		return s
	}
	return def
}

func intArg(input map[string]any, name string, def int) int {
	switch n := input[name].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return def
}

func boolArg(input map[string]any, name string) bool {
	b, _ := input[name].(bool)
	return b
}

func stringsArg(input map[string]any, name string) []string {
	switch v := input[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func secondsArg(input map[string]any, name string) time.Duration {
	return time.Duration(intArg(input, name, 0)) * time.Second
}
