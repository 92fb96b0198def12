package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTallyPath_Default(t *testing.T) {
	t.Setenv("TALLY_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := TallyPath()
	want := filepath.Join(home, ".tally")
	if got != want {
		t.Errorf("TallyPath() = %q, want %q", got, want)
	}
}

func TestTallyPath_EnvOverride(t *testing.T) {
	t.Setenv("TALLY_PATH", "/tmp/custom-tally")

	got := TallyPath()
	want := "/tmp/custom-tally"
	if got != want {
		t.Errorf("TallyPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("TALLY_PATH", "/tmp/test-tally")

	got := ConfigPath()
	want := "/tmp/test-tally/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("TALLY_PATH", "/tmp/test-tally")

	got := DotenvPath()
	want := "/tmp/test-tally/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}
