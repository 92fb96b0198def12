package models

import (
	"fmt"
	"strings"
)

// ErrModelUnavailable marks a provider backend that could not be reached or
// answered with something other than a model response.
type ErrModelUnavailable struct {
	Provider string
	Body     string
	Cause    error
}

func (e *ErrModelUnavailable) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("model provider %s unavailable: %v", e.Provider, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("model provider %s unavailable: %s", e.Provider, e.Body)
	default:
		return fmt.Sprintf("model provider %s unavailable", e.Provider)
	}
}

func (e *ErrModelUnavailable) Unwrap() error {
	return e.Cause
}

// errorHints maps a short label to the substrings that identify that failure
// class in provider SDK error strings.
var errorHints = []struct {
	label string
	needs []string
}{
	{"authentication failed", []string{"401", "403", "unauthorized", "invalid api key", "api key", "forbidden"}},
	{"rate limited", []string{"429", "rate limit", "quota", "too many requests"}},
	{"context too long", []string{"context length", "too many tokens", "max tokens", "token limit"}},
	{"model not found", []string{"model not found", "404", "not found"}},
	{"connection error", []string{"connection", "eof", "timeout", "dial", "refused"}},
}

// HandleError prefixes provider SDK errors with a recognizable failure class
// so callers and logs do not have to pattern-match raw SDK strings.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range errorHints {
		for _, needle := range hint.needs {
			if strings.Contains(msg, needle) {
				return fmt.Errorf("%s: %w", hint.label, err)
			}
		}
	}
	return err
}
