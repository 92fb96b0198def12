package config

import (
	"os"
	"path/filepath"
)

// TallyPath returns the root directory for Tally data.
// It uses $TALLY_PATH if set, otherwise defaults to ~/.tally.
func TallyPath() string {
	if v := os.Getenv("TALLY_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tally")
	}
	return filepath.Join(home, ".tally")
}

// ConfigPath returns the path to the Tally config file.
func ConfigPath() string {
	return filepath.Join(TallyPath(), "config.jsonc")
}

// DotenvPath returns the path to the Tally .env file.
func DotenvPath() string {
	return filepath.Join(TallyPath(), ".env")
}
