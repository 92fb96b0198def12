package models

import (
	"fmt"
	"os"
	"strings"

	"tally/internal/config"
)

// defaultKeyEnv maps a driver to the env var checked when no key is configured.
var defaultKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
}

// resolveAPIKey returns the API key for a provider.
// Resolution order: config api_key, then the driver's default env var.
func resolveAPIKey(cfg config.ProviderConfig) (string, error) {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}

	env, ok := defaultKeyEnv[strings.ToLower(cfg.Driver)]
	if !ok {
		return "", fmt.Errorf("driver %q needs an api_key", cfg.Driver)
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s not set", env)
}
