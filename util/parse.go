package util

import (
	"strconv"
	"strings"
	"time"
)

// The parse helpers back the flag and config layers: a value that does not
// parse falls back instead of failing, and surrounding whitespace from a
// config file is ignored.

func ParseInt(str string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		return fallback
	}
	return v
}

func ParseBool(str string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(str))
	if err != nil {
		return fallback
	}
	return v
}

func ParseDuration(str string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(str))
	if err != nil {
		return fallback
	}
	return v
}
