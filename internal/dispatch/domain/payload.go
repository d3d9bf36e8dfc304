package domain

import (
	"encoding/json"
	"strings"
)

// StringField reads a trimmed string out of a workflow payload. Missing or
// non-string values read as "".
func StringField(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Int64Field reads an integer out of a workflow payload. JSON numbers decode
// as float64, so both forms are accepted.
func Int64Field(payload map[string]any, key string) (int64, bool) {
	switch value := payload[key].(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	case float64:
		return int64(value), true
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
