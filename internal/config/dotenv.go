package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotenv reads a .env file and sets the variables it defines, skipping
// any that are already present in the environment. A missing file is not an
// error.
func LoadDotenv(path string) error {
	return eachDotenvVar(path, func(key, value string) {
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	})
}

// ReloadDotenv re-reads a .env file, overriding variables it defines.
// A missing file is not an error.
func ReloadDotenv(path string) error {
	return eachDotenvVar(path, func(key, value string) {
		os.Setenv(key, value)
	})
}

// eachDotenvVar parses path line by line and calls fn for every KEY=value
// entry. Blank lines and # comments are skipped; values may be wrapped in
// single or double quotes.
func eachDotenvVar(path string, fn func(key, value string)) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fn(strings.TrimSpace(key), unquote(strings.TrimSpace(value)))
	}
	return scanner.Err()
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
