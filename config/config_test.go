package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/field-workshops/labkit/http"
)

const (
	defaultBaseURL = "https://app.harness.io"
	missingFile    = "does-not-exist.yaml"
)

// clearEnvironmentVariables unsets variables that would leak into Load
func clearEnvironmentVariables(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) && key != EnvHostName && key != EnvParticipantID {
			continue
		}
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() { _ = os.Setenv(key, value) })
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithDefaults(t *testing.T) {
	clearEnvironmentVariables(t)

	cfg, err := LoadFrom(missingFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 4096, cfg.HTTP.MaxPayloadBytes)

	assert.Equal(t, defaultBaseURL, cfg.Platform.BaseURL)
	assert.Equal(t, "default", cfg.Platform.OrgID)
	assert.Empty(t, cfg.Platform.APIKey)

	assert.Equal(t, "/gateway/chaos/manager/api/query", cfg.Chaos.Path)
	assert.Equal(t, "master", cfg.Keycloak.Realm)
	assert.Equal(t, "default", cfg.Kube.Namespace)
	assert.Equal(t, "/etc/hosts", cfg.Kube.HostsFile)

	assert.Equal(t, PolicyConfig{Attempts: 4, Delay: 3 * time.Second}, cfg.Retry.Invite)
	assert.Equal(t, PolicyConfig{Attempts: 15, Delay: 5 * time.Second}, cfg.Retry.LoadBalancer)
	assert.Equal(t, PolicyConfig{Attempts: 30, Delay: 2 * time.Second}, cfg.Retry.LoadBalancerCLI)
	assert.Equal(t, PolicyConfig{Attempts: 5, Delay: 10 * time.Second}, cfg.Retry.Hosts)
	assert.Equal(t, 2*time.Second, cfg.Retry.API.Delay)

	assert.Equal(t, 8443, cfg.Editor.Port)
	assert.Equal(t, "hashicorp.terraform", cfg.Editor.Extension)
	assert.Equal(t, "code-server", cfg.Editor.Binary)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "stdout", cfg.Metrics.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.Metrics.Interval)

	assert.NotNil(t, cfg.Koanf())
}

func TestLoadFromYAMLFile(t *testing.T) {
	clearEnvironmentVariables(t)

	path := writeConfigFile(t, `
log:
  level: debug
platform:
  accountid: acc-123
  projectid: lab_project
retry:
  invite:
    attempts: 6
    delay: 500ms
keycloak:
  endpoint: https://sso.lab.example
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "acc-123", cfg.Platform.AccountID)
	assert.Equal(t, "lab_project", cfg.Platform.ProjectID)
	assert.Equal(t, PolicyConfig{Attempts: 6, Delay: 500 * time.Millisecond}, cfg.Retry.Invite)
	assert.Equal(t, "https://sso.lab.example", cfg.Keycloak.Endpoint)
	// untouched keys keep their defaults
	assert.Equal(t, defaultBaseURL, cfg.Platform.BaseURL)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	clearEnvironmentVariables(t)

	path := writeConfigFile(t, "platform:\n  accountid: from-file\n")
	t.Setenv("LABKIT_PLATFORM_ACCOUNTID", "from-env")
	t.Setenv("LABKIT_PLATFORM_APIKEY", "pat.secret")
	t.Setenv("LABKIT_RETRY_HOSTS_ATTEMPTS", "2")
	t.Setenv("LABKIT_RETRY_HOSTS_DELAY", "1s")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Platform.AccountID)
	assert.Equal(t, "pat.secret", cfg.Platform.APIKey)
	assert.Equal(t, PolicyConfig{Attempts: 2, Delay: time.Second}, cfg.Retry.Hosts)
}

func TestLoadLabPlatformVariables(t *testing.T) {
	clearEnvironmentVariables(t)

	t.Setenv("LABKIT_LAB_HOSTNAME", "ignored")
	t.Setenv(EnvHostName, "sandbox-1")
	t.Setenv(EnvParticipantID, "p-42")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "sandbox-1", cfg.Lab.HostName)
	assert.Equal(t, "p-42", cfg.Lab.ParticipantID)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "log level", yaml: "log:\n  level: loud\n", field: "log.level"},
		{name: "base url", yaml: "platform:\n  baseurl: not-a-url\n", field: "platform.baseurl"},
		{name: "zero attempts", yaml: "retry:\n  api:\n    attempts: 0\n", field: "retry.api.attempts"},
		{name: "keycloak url", yaml: "keycloak:\n  endpoint: ://bad\n", field: "keycloak.endpoint"},
		{name: "editor port", yaml: "editor:\n  port: 70000\n", field: "editor.port"},
		{name: "metrics protocol", yaml: "metrics:\n  enabled: true\n  endpoint: localhost:4317\n  protocol: udp\n", field: "metrics.protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvironmentVariables(t)

			_, err := LoadFrom(writeConfigFile(t, tt.yaml))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnvironmentVariables(t)

	_, err := LoadFrom(writeConfigFile(t, "log: [unterminated"))
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "invalid", cfgErr.Category)
}

func TestRequireHelpers(t *testing.T) {
	cfg := &Config{}

	err := cfg.RequirePlatform()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.apikey")
	assert.Contains(t, err.Error(), "LABKIT_PLATFORM_ACCOUNTID")

	cfg.Platform = PlatformConfig{APIKey: "k", AccountID: "a"}
	assert.NoError(t, cfg.RequirePlatform())

	assert.True(t, IsNotConfigured(cfg.RequireKeycloak()))
	cfg.Keycloak.Endpoint = "https://sso"
	err = cfg.RequireKeycloak()
	require.Error(t, err)
	assert.False(t, IsNotConfigured(err))
	cfg.Keycloak.AdminPassword = "pw"
	assert.NoError(t, cfg.RequireKeycloak())

	assert.True(t, IsNotConfigured(cfg.RequireGenerator()))
}

func TestPolicyConfigPolicy(t *testing.T) {
	p := PolicyConfig{Attempts: 4, Delay: 3 * time.Second}.Policy(http.FieldEquals("SUCCESS", "status"))

	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.Delay)
	assert.NotNil(t, p.Success)
	assert.False(t, p.NonIdempotent)
}
