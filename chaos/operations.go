package chaos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/manifest"
	"github.com/field-workshops/labkit/validation"
)

// ErrInfraNotFound is returned when no infrastructure has the requested name.
var ErrInfraNotFound = errors.New("chaos infrastructure not found")

// InfraParams describes chaos infrastructure to register. Zero values take
// the defaults listed on each field.
type InfraParams struct {
	Name          string `json:"name" validate:"required"`
	EnvironmentID string `json:"environmentID" validate:"required"`

	// PlatformName defaults to "Kubernetes"
	PlatformName string `json:"platformName"`
	// InfraNamespace defaults to "hce"
	InfraNamespace string `json:"infraNamespace" validate:"omitempty,k8sname"`
	// ServiceAccount defaults to "hce"
	ServiceAccount string `json:"serviceAccount" validate:"omitempty,k8sname"`
	// InfraScope defaults to "namespace"
	InfraScope string `json:"infraScope" validate:"omitempty,oneof=namespace cluster"`
	// InfraNsExists defaults to true
	InfraNsExists *bool `json:"infraNsExists"`
	// InstallationType defaults to "MANIFEST"
	InstallationType     string `json:"installationType"`
	IsAutoUpgradeEnabled bool   `json:"isAutoUpgradeEnabled"`
	Description          string `json:"description,omitempty"`
}

func (p *InfraParams) applyDefaults() {
	if p.PlatformName == "" {
		p.PlatformName = "Kubernetes"
	}
	if p.InfraNamespace == "" {
		p.InfraNamespace = "hce"
	}
	if p.ServiceAccount == "" {
		p.ServiceAccount = "hce"
	}
	if p.InfraScope == "" {
		p.InfraScope = "namespace"
	}
	if p.InfraNsExists == nil {
		exists := true
		p.InfraNsExists = &exists
	}
	if p.InstallationType == "" {
		p.InstallationType = "MANIFEST"
	}
}

// ProbeParams describes an HTTP probe. Zero values take the listed defaults.
type ProbeParams struct {
	Name string `json:"name" validate:"required"`
	// URL defaults to http://example.com
	URL string `json:"url" validate:"omitempty,http_url"`
	// Timeout defaults to 10s
	Timeout string `json:"probeTimeout"`
	// Interval defaults to 5s
	Interval string `json:"interval"`
	// Retry defaults to 3
	Retry *int `json:"retry" validate:"omitempty,min=0"`
	// Attempt defaults to 3
	Attempt *int `json:"attempt" validate:"omitempty,min=0"`
	// PollingInterval defaults to 1s
	PollingInterval string `json:"probePollingInterval"`
	// InitialDelay defaults to 2s
	InitialDelay  string `json:"initialDelay"`
	StopOnFailure bool   `json:"stopOnFailure"`
	// Criteria defaults to "=="
	Criteria string `json:"criteria"`
	// ResponseCode defaults to "200"
	ResponseCode string `json:"responseCode" validate:"omitempty,numeric"`
}

type probeCheck struct {
	Criteria     string `json:"criteria"`
	ResponseCode string `json:"responseCode"`
}

type httpProbeProperties struct {
	ProbeTimeout         string                `json:"probeTimeout"`
	Interval             string                `json:"interval"`
	Retry                int                   `json:"retry"`
	Attempt              int                   `json:"attempt"`
	ProbePollingInterval string                `json:"probePollingInterval"`
	InitialDelay         string                `json:"initialDelay"`
	StopOnFailure        bool                  `json:"stopOnFailure"`
	URL                  string                `json:"url"`
	Method               map[string]probeCheck `json:"method"`
}

type probeRequest struct {
	Name               string              `json:"name"`
	ProbeID            string              `json:"probeID"`
	Type               string              `json:"type"`
	InfrastructureType string              `json:"infrastructureType"`
	Properties         httpProbeProperties `json:"kubernetesHTTPProperties"`
}

func (p *ProbeParams) applyDefaults() {
	defaults := []struct {
		field *string
		value string
	}{
		{&p.URL, "http://example.com"},
		{&p.Timeout, "10s"},
		{&p.Interval, "5s"},
		{&p.PollingInterval, "1s"},
		{&p.InitialDelay, "2s"},
		{&p.Criteria, "=="},
		{&p.ResponseCode, "200"},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}
	for _, count := range []**int{&p.Retry, &p.Attempt} {
		if *count == nil {
			n := 3
			*count = &n
		}
	}
}

// Probe is the probe returned by the chaos API.
type Probe struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Infra is one registered chaos infrastructure.
type Infra struct {
	InfraID          string `json:"infraID"`
	Name             string `json:"name"`
	EnvironmentID    string `json:"environmentID"`
	PlatformName     string `json:"platformName"`
	InfraNamespace   string `json:"infraNamespace"`
	ServiceAccount   string `json:"serviceAccount"`
	InfraScope       string `json:"infraScope"`
	InstallationType string `json:"installationType"`
}

// GenerateID derives a probe ID from a display name: spaces become
// underscores and dashes are removed.
func GenerateID(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, " ", "_"), "-", "")
}

// RegisterInfra registers infrastructure and writes its install manifest to
// <manifest dir>/<name>_manifest.yaml. It returns the manifest path.
func (c *Client) RegisterInfra(ctx context.Context, p InfraParams) (string, error) {
	if err := validation.Struct(p); err != nil {
		return "", err
	}
	p.applyDefaults()

	resp, err := c.Call(ctx, RegisterInfra, p)
	if err != nil {
		return "", err
	}
	data, err := resp.Field("data", "registerInfra", "manifest")
	if err != nil || data == "" {
		return "", fmt.Errorf("chaos %s: response has no manifest", RegisterInfra)
	}

	path := filepath.Join(c.manifestDir, p.Name+"_manifest.yaml")
	if err := manifest.WriteFile(path, []byte(data)); err != nil {
		return "", err
	}
	c.logger.Info().Str("infra", p.Name).Str("path", path).Msg("Chaos infrastructure registered")
	return path, nil
}

// AddProbe creates an HTTP probe whose ID is GenerateID(p.Name).
func (c *Client) AddProbe(ctx context.Context, p ProbeParams) (Probe, error) {
	if err := validation.Struct(p); err != nil {
		return Probe{}, err
	}
	p.applyDefaults()

	req := probeRequest{
		Name:               p.Name,
		ProbeID:            GenerateID(p.Name),
		Type:               "httpProbe",
		InfrastructureType: "Kubernetes",
		Properties: httpProbeProperties{
			ProbeTimeout:         p.Timeout,
			Interval:             p.Interval,
			Retry:                *p.Retry,
			Attempt:              *p.Attempt,
			ProbePollingInterval: p.PollingInterval,
			InitialDelay:         p.InitialDelay,
			StopOnFailure:        p.StopOnFailure,
			URL:                  p.URL,
			Method:               map[string]probeCheck{"get": {Criteria: p.Criteria, ResponseCode: p.ResponseCode}},
		},
	}

	resp, err := c.Call(ctx, AddProbe, req)
	if err != nil {
		return Probe{}, err
	}

	probe := Probe{Name: p.Name}
	if name, err := resp.Field("data", "addProbe", "name"); err == nil && name != "" {
		probe.Name = name
	}
	probe.Type, _ = resp.Field("data", "addProbe", "type")
	c.logger.Info().Str("probe", probe.Name).Str("probe_id", req.ProbeID).Msg("Probe added")
	return probe, nil
}

// ListInfras returns the infrastructures registered in the project.
func (c *Client) ListInfras(ctx context.Context) ([]Infra, error) {
	resp, err := c.Call(ctx, ListInfra, nil)
	if err != nil {
		return nil, err
	}

	var infras []Infra
	err = resp.Each(func(element []byte) error {
		var infra Infra
		if err := json.Unmarshal(element, &infra); err != nil {
			return err
		}
		infras = append(infras, infra)
		return nil
	}, "data", "listInfrasV2", "infras")
	if err != nil {
		return nil, fmt.Errorf("chaos %s: malformed infra list: %w", ListInfra, err)
	}
	return infras, nil
}

// ManifestForInfra fetches the manifest of the infrastructure named name and
// writes it to <dir>/<name>-harness-chaos-enable.yml. An empty dir means the
// lab work directory. It returns the manifest path.
func (c *Client) ManifestForInfra(ctx context.Context, name, dir string) (string, error) {
	if name == "" {
		return "", http.NewValidationError("infrastructure name cannot be empty", "name")
	}

	infras, err := c.ListInfras(ctx)
	if err != nil {
		return "", err
	}
	var infraID string
	for _, infra := range infras {
		if infra.Name == name {
			infraID = infra.InfraID
			break
		}
	}
	if infraID == "" {
		return "", fmt.Errorf("%w: %s", ErrInfraNotFound, name)
	}
	c.logger.Info().Str("infra", name).Str("infra_id", infraID).Msg("Found chaos infrastructure")

	resp, err := c.Call(ctx, GetInfraManifest, infraID)
	if err != nil {
		return "", err
	}
	data, err := resp.Field("data", "getInfraManifest")
	if err != nil || data == "" {
		return "", fmt.Errorf("chaos %s: response has no manifest", GetInfraManifest)
	}

	if dir == "" {
		dir = c.workDir
	}
	path := filepath.Join(dir, name+"-harness-chaos-enable.yml")
	if err := manifest.WriteFile(path, []byte(data)); err != nil {
		return "", err
	}
	c.logger.Info().Str("infra", name).Str("path", path).Msg("Chaos infrastructure manifest saved")
	return path, nil
}
