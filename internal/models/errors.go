package models

import (
	"fmt"
	"strings"
)

// UnknownStepError is returned when a pipeline step has no configured spec.
// There is no fallback between steps; an unconfigured step is fatal for
// the turn that needs it.
type UnknownStepError struct {
	Step string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("model step %q is not configured", e.Step)
}

// ProviderError wraps any model invocation failure (timeout, quota,
// transport) uniformly. Retry policy belongs to the caller.
type ProviderError struct {
	Step     string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q (step %q): %v", e.Provider, e.Step, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// classify converts common SDK errors to user-friendly errors.
func classify(err error) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, "401", "403", "unauthorized", "invalid api key", "api key", "forbidden") {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if containsAny(errStr, "429", "rate limit", "quota", "too many requests") {
		return fmt.Errorf("rate limited: %w", err)
	}

	if containsAny(errStr, "context length", "too many tokens", "max tokens", "token limit") {
		return fmt.Errorf("context too long: %w", err)
	}

	if containsAny(errStr, "model not found", "404", "not found") {
		return fmt.Errorf("model not found: %w", err)
	}

	if containsAny(errStr, "connection", "eof", "timeout", "deadline", "dial", "refused") {
		return fmt.Errorf("connection error: %w", err)
	}

	return err
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
