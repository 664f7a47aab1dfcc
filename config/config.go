package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFile is the configuration file looked up in the working directory
	DefaultFile = "labkit.yaml"

	// EnvPrefix prefixes every environment variable read by Load
	EnvPrefix = "LABKIT_"

	// Variables injected by the lab platform into every sandbox host
	EnvHostName      = "HOST_NAME"
	EnvParticipantID = "INSTRUQT_PARTICIPANT_ID"
)

// Load loads configuration from DefaultFile and the environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultFile)
}

// LoadFrom loads configuration from multiple sources with priority:
// 1. Variables injected by the lab platform (HOST_NAME, INSTRUQT_PARTICIPANT_ID)
// 2. LABKIT_* environment variables
// 3. The YAML file at path, when it exists
// 4. Default values (lowest priority)
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	// LABKIT_PLATFORM_APIKEY -> platform.apikey
	if err := k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := loadPlatformAliases(k); err != nil {
		return nil, fmt.Errorf("failed to load lab platform variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return &ConfigError{
			Category: CategoryInvalid,
			Field:    path,
			Message:  fmt.Sprintf("cannot parse yaml: %v", err),
			Action:   "fix the file or remove it to use defaults",
		}
	}
	return nil
}

func loadPlatformAliases(k *koanf.Koanf) error {
	aliases := map[string]any{}
	if v, ok := os.LookupEnv(EnvHostName); ok {
		aliases["lab.hostname"] = v
	}
	if v, ok := os.LookupEnv(EnvParticipantID); ok {
		aliases["lab.participantid"] = v
	}
	if len(aliases) == 0 {
		return nil
	}
	return k.Load(confmap.Provider(aliases, "."), nil)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"log.level":  "info",
		"log.pretty": false,

		"http.timeout":         "30s",
		"http.logpayloads":     false,
		"http.maxpayloadbytes": 4096,

		"platform.baseurl": "https://app.harness.io",
		"platform.orgid":   "default",

		"chaos.path":        "/gateway/chaos/manager/api/query",
		"chaos.manifestdir": "/tmp",

		"keycloak.realm":     "master",
		"keycloak.adminuser": "admin",

		"kube.namespace":   "default",
		"kube.kubectl":     "kubectl",
		"kube.hostsfile":   "/etc/hosts",
		"kube.manifestdir": ".",
		"kube.apiurl":      "http://localhost:8001/api",

		"retry.invite.attempts":          4,
		"retry.invite.delay":             "3s",
		"retry.loadbalancer.attempts":    15,
		"retry.loadbalancer.delay":       "5s",
		"retry.loadbalancercli.attempts": 30,
		"retry.loadbalancercli.delay":    "2s",
		"retry.hosts.attempts":           5,
		"retry.hosts.delay":              "10s",
		"retry.api.attempts":             90,
		"retry.api.delay":                "2s",

		"lab.agent":   "agent",
		"lab.failcmd": "fail-message",
		"lab.workdir": ".",

		"editor.port":         8443,
		"editor.directory":    "/home/harness",
		"editor.user":         "harness",
		"editor.home":         "/home/harness",
		"editor.binary":       "code-server",
		"editor.installerurl": "https://raw.githubusercontent.com/cdr/code-server/main/install.sh",
		"editor.settingsurl":  "https://raw.githubusercontent.com/jtitra/field-workshops/main/assets/misc/vs_code/settings.json",
		"editor.uniturl":      "https://raw.githubusercontent.com/jtitra/field-workshops/main/assets/misc/vs_code/code-server.service",
		"editor.extension":    "hashicorp.terraform",
		"editor.unitdir":      "/etc/systemd/system",

		"metrics.enabled":  false,
		"metrics.endpoint": "stdout",
		"metrics.protocol": "http",
		"metrics.interval": "15s",

		"credentials.templateurl": "https://raw.githubusercontent.com/jtitra/field-workshops/main/assets/misc/credential_tab_template.html",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
