// Package util provides environment variable parsing helpers for the precare binary.
package util

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// GetenvDefault returns the trimmed value of key, or def when it is unset or blank.
func GetenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ParseBoolEnv parses a boolean environment variable.
// Accepts true/1/yes/on and false/0/no/off, case-insensitively. Anything else
// logs a warning and yields def.
func ParseBoolEnv(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", def)
	return def
}

// ParseDurationEnv parses a time.ParseDuration value such as "90s" or "24h".
// Invalid or non-positive values log a warning and yield def.
func ParseDurationEnv(key string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		slog.Warn("ParseDurationEnv: invalid duration, using default", "key", key, "value", val, "default", def)
		return def
	}
	return d
}
