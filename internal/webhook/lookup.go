package webhook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// dig walks a dotted path through nested maps and arrays. Numeric segments
// index into arrays. A JSON-encoded string mid-path (tool call arguments
// arrive that way) is decoded and walked into.
func dig(root map[string]any, path string) any {
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			cur = v[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			cur = v[i]
		case string:
			var m map[string]any
			if json.Unmarshal([]byte(v), &m) != nil {
				return nil
			}
			cur = m[seg]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func firstStr(root map[string]any, paths ...string) string {
	for _, p := range paths {
		if s, ok := dig(root, p).(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstTime accepts RFC 3339 strings and epoch values. Bare numbers are
// read as milliseconds when they are too large to be seconds.
func firstTime(root map[string]any, paths ...string) *time.Time {
	for _, p := range paths {
		switch v := dig(root, p).(type) {
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				t = t.UTC()
				return &t
			}
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				t = t.UTC()
				return &t
			}
		case float64:
			n := int64(v)
			var t time.Time
			if n > 1e12 {
				t = time.UnixMilli(n).UTC()
			} else if n > 0 {
				t = time.Unix(n, 0).UTC()
			} else {
				continue
			}
			return &t
		}
	}
	return nil
}
