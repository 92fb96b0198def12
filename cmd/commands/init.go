package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"tally/internal/config"
)

// NewInitCommand returns the setup subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Initialize the Tally home directory (~/.tally)",
		Action: runInit,
	}
}

func runInit(_ context.Context, _ *cli.Command) error {
	root := config.TallyPath()
	created := false

	// Ensure directories exist.
	dirs := []string{
		root,
		filepath.Join(root, "logs"),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	// Write default config if missing.
	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	// Write default .env if missing.
	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	if !created {
		fmt.Printf("Nothing to do, %s is already set up.\n", root)
		return nil
	}

	fmt.Printf(`
Tally home set up at %s

Next steps:
  1. Tweak %s/config.jsonc if you need to
  2. Run: tally serve
  3. In another terminal: tally chat "add a task to try this out"
`, root, root)
	return nil
}

const defaultConfig = `{
	// Tally configuration

	"server": {
		"host": "127.0.0.1",
		"port": 18520
	},

	// Intent resolution: "rules" needs no model. Switch to "model" and
	// configure a provider below for LLM-backed parsing.
	"resolver": {
		"driver": "rules"
	},

	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "claude",
				"model": "claude-sonnet-4-20250514",
				"api_key": "${{ .Env.ANTHROPIC_API_KEY }}",
				"max_tokens": 4096
			}

			// Local model via Ollama (no auth required)
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "llama3.1:8b",
			// 	"base_url": "http://localhost:11434",
			// 	"max_tokens": 4096
			// }
		}
	},

	"retention": {
		"schedule": "0 3 * * *",
		"completed_task_ttl": "2160h",
		"idle_conversation_ttl": "2160h"
	}
}
`

const defaultDotenv = `# Tally environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# ANTHROPIC_API_KEY=sk-ant-...
# OPENAI_API_KEY=sk-...
`
