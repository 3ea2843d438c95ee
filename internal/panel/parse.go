package panel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// getString reads a string field, also accepting numeric ids.
func getString(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// parseInt64 reads a numeric field, reporting whether it was present and non-null.
func parseInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		return int64(val), true
	case json.Number:
		i, err := val.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// parseTimeToUnix accepts unix seconds or a timestamp string.
func parseTimeToUnix(v interface{}) (int64, bool) {
	if i, ok := parseInt64(v); ok {
		return i, true
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return 0, false
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// extractAPIError pulls a human message out of a panel error body.
func extractAPIError(body []byte, status int) string {
	if len(body) == 0 {
		return fmt.Sprintf("HTTP %d", status)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Sprintf("HTTP %d", status)
	}

	for _, key := range []string{"detail", "error", "msg", "message"} {
		if s, ok := parsed[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

func decodeObject(body []byte) (map[string]interface{}, bool) {
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, false
	}
	return out, out != nil
}
