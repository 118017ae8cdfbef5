// Package config provides shared configuration-loading helpers: YAML
// unmarshalling with environment-variable overrides and duration parsing
// that accepts both Go's time.ParseDuration syntax and ISO-8601.
package config

import (
	"fmt"
	"time"

	"github.com/sosodev/duration"
)

// ParseDuration parses s as a Go duration ("5s", "250ms") first, falling
// back to ISO-8601 ("PT5S") for config fields written in that form.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	iso, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return iso.ToTimeDuration(), nil
}
