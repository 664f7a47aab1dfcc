package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// Validate checks the loaded configuration. Credentials are not required
// here; operations that need them call the Require* helpers.
func Validate(cfg *Config) error {
	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateHTTP(&cfg.HTTP); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := validateURL("platform.baseurl", cfg.Platform.BaseURL, true); err != nil {
		return fmt.Errorf("platform config: %w", err)
	}

	if err := validateURL("keycloak.endpoint", cfg.Keycloak.Endpoint, false); err != nil {
		return fmt.Errorf("keycloak config: %w", err)
	}

	if err := validateURL("lab.generatorurl", cfg.Lab.GeneratorURL, false); err != nil {
		return fmt.Errorf("lab config: %w", err)
	}

	if err := validateRetry(&cfg.Retry); err != nil {
		return fmt.Errorf("retry config: %w", err)
	}

	if cfg.Editor.Port < 0 || cfg.Editor.Port > 65535 {
		return fmt.Errorf("editor config: %w",
			NewInvalidFieldError("editor.port", fmt.Sprintf("invalid port: %d (must be 1-65535)", cfg.Editor.Port), nil))
	}

	if err := validateMetrics(&cfg.Metrics); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

var validMetricsProtocols = []string{"http", "grpc"}

func validateMetrics(cfg *MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Endpoint == "" {
		return NewMissingFieldError("metrics.endpoint")
	}
	if cfg.Endpoint != "stdout" && !slices.Contains(validMetricsProtocols, cfg.Protocol) {
		return NewInvalidFieldError("metrics.protocol", fmt.Sprintf("invalid protocol: %s", cfg.Protocol), validMetricsProtocols)
	}
	if cfg.Interval < 0 {
		return NewInvalidFieldError("metrics.interval", "interval must not be negative", nil)
	}
	return nil
}

func validateLog(cfg *LogConfig) error {
	level := strings.ToLower(cfg.Level)
	if level == "" {
		return nil
	}
	if !slices.Contains(validLogLevels, level) {
		return NewInvalidFieldError("log.level", fmt.Sprintf("invalid log level: %s", cfg.Level), validLogLevels)
	}
	return nil
}

func validateHTTP(cfg *HTTPConfig) error {
	if cfg.Timeout < 0 {
		return NewInvalidFieldError("http.timeout", "timeout must not be negative", nil)
	}
	if cfg.MaxPayloadBytes < 0 {
		return NewInvalidFieldError("http.maxpayloadbytes", "must not be negative", nil)
	}
	return nil
}

func validateURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return NewMissingFieldError(field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewInvalidFieldError(field, fmt.Sprintf("invalid URL: %q", raw), nil)
	}
	return nil
}

func validateRetry(cfg *RetryConfig) error {
	policies := map[string]PolicyConfig{
		"retry.invite":          cfg.Invite,
		"retry.loadbalancer":    cfg.LoadBalancer,
		"retry.loadbalancercli": cfg.LoadBalancerCLI,
		"retry.hosts":           cfg.Hosts,
		"retry.api":             cfg.API,
	}
	for field, p := range policies {
		if p.Attempts < 1 {
			return NewInvalidFieldError(field+".attempts", fmt.Sprintf("attempts must be at least 1, got %d", p.Attempts), nil)
		}
		if p.Delay < 0 {
			return NewInvalidFieldError(field+".delay", "delay must not be negative", nil)
		}
	}
	return nil
}

// RequirePlatform reports the platform fields missing for API calls.
func (c *Config) RequirePlatform() error {
	var errs []error
	if c.Platform.APIKey == "" {
		errs = append(errs, NewMissingFieldError("platform.apikey"))
	}
	if c.Platform.AccountID == "" {
		errs = append(errs, NewMissingFieldError("platform.accountid"))
	}
	return errors.Join(errs...)
}

// RequireKeycloak reports whether the identity provider is configured.
func (c *Config) RequireKeycloak() error {
	if c.Keycloak.Endpoint == "" {
		return NewNotConfiguredError("keycloak", "keycloak.endpoint")
	}
	if c.Keycloak.AdminPassword == "" {
		return NewMissingFieldError("keycloak.adminpassword")
	}
	return nil
}

// RequireGenerator reports whether the cluster credentials generator is configured.
func (c *Config) RequireGenerator() error {
	if c.Lab.GeneratorURL == "" {
		return NewNotConfiguredError("cluster credentials generator", "lab.generatorurl")
	}
	return nil
}
