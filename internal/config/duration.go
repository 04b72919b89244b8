package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOr parses raw, returning def when raw is empty. field names the
// config key in errors.
func DurationOr(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be > 0", field)
	}
	return d, nil
}
