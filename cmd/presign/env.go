package main

import (
	"github.com/vyrodovalexey/avasdk/internal/config"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(lookup config.LookupFunc, key, defaultValue string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}
