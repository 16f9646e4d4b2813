package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseTargetTime parses the purchase time. Formats without a zone are local time:
//   - "2025-04-19 22:28:33"   (YYYY-MM-DD HH:MM:SS)
//   - "2025-04-19 22:28"      (YYYY-MM-DD HH:MM)
//   - "2025-04-19T22:28:33+08:00" (RFC3339, zone honoured)
func ParseTargetTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("target_time is required")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-1-2 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid target_time %q. Use YYYY-MM-DD HH:MM:SS (e.g. 2025-04-19 22:28:33), local time", s)
}

// Target returns the parsed TargetTime
func (c *Config) Target() (time.Time, error) {
	return ParseTargetTime(c.TargetTime)
}
