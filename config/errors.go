package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured marks an optional integration (identity provider, credentials
// generator) that the lab does not use. Callers may treat it as "skip".
var ErrNotConfigured = errors.New("not configured")

// Error categories
const (
	CategoryMissing       = "missing"
	CategoryInvalid       = "invalid"
	CategoryNotConfigured = "not_configured"
)

// ConfigError describes a configuration problem and how to fix it.
//
//nolint:revive // config.ConfigError reads better at call sites than config.Error
type ConfigError struct {
	Category string
	// Field is the koanf key, e.g. "platform.apikey"
	Field   string
	Message string
	// Action tells the lab author how to fix the problem
	Action  string
	Details []string
}

// Error renders "config_<category>: <field> <message> <action> <details>",
// skipping empty parts.
func (e *ConfigError) Error() string {
	parts := make([]string, 0, 5)
	if e.Category != "" {
		parts = append(parts, "config_"+e.Category+":")
	}
	for _, p := range []string{e.Field, e.Message, e.Action, strings.Join(e.Details, "; ")} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes ErrNotConfigured for not-configured errors.
func (e *ConfigError) Unwrap() error {
	if e.Category == CategoryNotConfigured {
		return ErrNotConfigured
	}
	return nil
}

// NewMissingFieldError reports a required key with no value.
func NewMissingFieldError(field string) *ConfigError {
	return &ConfigError{
		Category: CategoryMissing,
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var or add %s to %s", EnvVar(field), field, DefaultFile),
	}
}

// NewInvalidFieldError reports a key whose value cannot be used.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{Category: CategoryInvalid, Field: field, Message: message}
	if len(validOptions) > 0 {
		err.Action = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

// NewNotConfiguredError reports that the optional feature behind field is off.
func NewNotConfiguredError(feature, field string) *ConfigError {
	return &ConfigError{
		Category: CategoryNotConfigured,
		Field:    feature,
		Message:  "(optional)",
		Action:   fmt.Sprintf("to enable: set %s env var or add %s to %s", EnvVar(field), field, DefaultFile),
	}
}

// IsNotConfigured reports whether err means an optional feature is off.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// EnvVar returns the environment variable that overrides a config key.
func EnvVar(field string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(field, ".", "_"))
}
