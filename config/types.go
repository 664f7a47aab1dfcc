package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/logger"
)

// Config represents the configuration of a lab provisioning run.
// The embedded koanf instance allows access to keys not modelled here.
type Config struct {
	Log         LogConfig         `koanf:"log" json:"log" yaml:"log"`
	HTTP        HTTPConfig        `koanf:"http" json:"http" yaml:"http"`
	Platform    PlatformConfig    `koanf:"platform" json:"platform" yaml:"platform"`
	Chaos       ChaosConfig       `koanf:"chaos" json:"chaos" yaml:"chaos"`
	Keycloak    KeycloakConfig    `koanf:"keycloak" json:"keycloak" yaml:"keycloak"`
	Kube        KubeConfig        `koanf:"kube" json:"kube" yaml:"kube"`
	Retry       RetryConfig       `koanf:"retry" json:"retry" yaml:"retry"`
	Lab         LabConfig         `koanf:"lab" json:"lab" yaml:"lab"`
	Editor      EditorConfig      `koanf:"editor" json:"editor" yaml:"editor"`
	Credentials CredentialsConfig `koanf:"credentials" json:"credentials" yaml:"credentials"`
	Metrics     MetricsConfig     `koanf:"metrics" json:"metrics" yaml:"metrics"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// HTTPConfig holds settings shared by every outbound client.
type HTTPConfig struct {
	Timeout         time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	LogPayloads     bool          `koanf:"logpayloads" json:"logpayloads" yaml:"logpayloads"`
	MaxPayloadBytes int           `koanf:"maxpayloadbytes" json:"maxpayloadbytes" yaml:"maxpayloadbytes"`
}

// ClientBuilder returns an http.Builder carrying the shared client settings.
func (h HTTPConfig) ClientBuilder(log logger.Logger) *http.Builder {
	return http.NewBuilder(log).
		WithTimeout(h.Timeout).
		WithPayloadLogging(h.LogPayloads, h.MaxPayloadBytes)
}

// PlatformConfig identifies the SaaS delivery platform account a lab runs in.
type PlatformConfig struct {
	BaseURL   string `koanf:"baseurl" json:"baseurl" yaml:"baseurl"`
	APIKey    string `koanf:"apikey" json:"-" yaml:"-"`
	AccountID string `koanf:"accountid" json:"accountid" yaml:"accountid"`
	OrgID     string `koanf:"orgid" json:"orgid" yaml:"orgid"`
	ProjectID string `koanf:"projectid" json:"projectid" yaml:"projectid"`
}

// ChaosConfig holds the chaos-engineering GraphQL settings.
type ChaosConfig struct {
	// Path of the GraphQL endpoint, relative to Platform.BaseURL
	Path        string `koanf:"path" json:"path" yaml:"path"`
	ManifestDir string `koanf:"manifestdir" json:"manifestdir" yaml:"manifestdir"`
}

// KeycloakConfig holds identity provider settings.
type KeycloakConfig struct {
	Endpoint      string `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Realm         string `koanf:"realm" json:"realm" yaml:"realm"`
	AdminUser     string `koanf:"adminuser" json:"adminuser" yaml:"adminuser"`
	AdminPassword string `koanf:"adminpassword" json:"-" yaml:"-"`
}

// KubeConfig holds orchestration settings.
type KubeConfig struct {
	// Kubeconfig is the path of a kubeconfig file. Empty means in-cluster config.
	Kubeconfig  string `koanf:"kubeconfig" json:"kubeconfig" yaml:"kubeconfig"`
	Namespace   string `koanf:"namespace" json:"namespace" yaml:"namespace"`
	Kubectl     string `koanf:"kubectl" json:"kubectl" yaml:"kubectl"`
	HostsFile   string `koanf:"hostsfile" json:"hostsfile" yaml:"hostsfile"`
	ManifestDir string `koanf:"manifestdir" json:"manifestdir" yaml:"manifestdir"`
	APIURL      string `koanf:"apiurl" json:"apiurl" yaml:"apiurl"`
}

// PolicyConfig is the configurable part of a retry policy.
type PolicyConfig struct {
	Attempts int           `koanf:"attempts" json:"attempts" yaml:"attempts"`
	Delay    time.Duration `koanf:"delay" json:"delay" yaml:"delay"`
}

// Policy builds an http.Policy from the configured budget and success.
func (p PolicyConfig) Policy(success http.Predicate) http.Policy {
	return http.Retrying(p.Attempts, p.Delay, success)
}

// RetryConfig holds the retry budgets of the polling operations.
type RetryConfig struct {
	Invite          PolicyConfig `koanf:"invite" json:"invite" yaml:"invite"`
	LoadBalancer    PolicyConfig `koanf:"loadbalancer" json:"loadbalancer" yaml:"loadbalancer"`
	LoadBalancerCLI PolicyConfig `koanf:"loadbalancercli" json:"loadbalancercli" yaml:"loadbalancercli"`
	Hosts           PolicyConfig `koanf:"hosts" json:"hosts" yaml:"hosts"`
	API             PolicyConfig `koanf:"api" json:"api" yaml:"api"`
}

// LabConfig holds values of the sandbox the helpers run in.
type LabConfig struct {
	HostName      string `koanf:"hostname" json:"hostname" yaml:"hostname"`
	ParticipantID string `koanf:"participantid" json:"participantid" yaml:"participantid"`
	// Agent is the lab agent binary used for variables
	Agent   string `koanf:"agent" json:"agent" yaml:"agent"`
	FailCmd string `koanf:"failcmd" json:"failcmd" yaml:"failcmd"`
	WorkDir string `koanf:"workdir" json:"workdir" yaml:"workdir"`
	// GeneratorURL is the base URL of the cluster credentials generator
	GeneratorURL string `koanf:"generatorurl" json:"generatorurl" yaml:"generatorurl"`
}

// EditorConfig holds the in-browser editor installation settings.
type EditorConfig struct {
	Port         int    `koanf:"port" json:"port" yaml:"port"`
	Directory    string `koanf:"directory" json:"directory" yaml:"directory"`
	User         string `koanf:"user" json:"user" yaml:"user"`
	Home         string `koanf:"home" json:"home" yaml:"home"`
	Binary       string `koanf:"binary" json:"binary" yaml:"binary"`
	InstallerURL string `koanf:"installerurl" json:"installerurl" yaml:"installerurl"`
	SettingsURL  string `koanf:"settingsurl" json:"settingsurl" yaml:"settingsurl"`
	UnitURL      string `koanf:"uniturl" json:"uniturl" yaml:"uniturl"`
	Extension    string `koanf:"extension" json:"extension" yaml:"extension"`
	UnitDir      string `koanf:"unitdir" json:"unitdir" yaml:"unitdir"`
}

// CredentialsConfig holds the credentials page settings.
type CredentialsConfig struct {
	TemplateURL string `koanf:"templateurl" json:"templateurl" yaml:"templateurl"`
}

// MetricsConfig holds the OpenTelemetry export settings of outbound call metrics.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled"`
	// Endpoint is an OTLP collector address, or "stdout"
	Endpoint string `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	// Protocol is "http" or "grpc"
	Protocol string            `koanf:"protocol" json:"protocol" yaml:"protocol"`
	Insecure bool              `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Interval time.Duration     `koanf:"interval" json:"interval" yaml:"interval"`
	Headers  map[string]string `koanf:"headers" json:"-" yaml:"-"`
}

// Koanf returns the underlying koanf instance, nil for hand-built configs.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}
