package harness

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/kube"
	"github.com/field-workshops/labkit/manifest"
	"github.com/field-workshops/labkit/validation"
)

const (
	// DefaultDelegateName is the name of delegates created without one.
	DefaultDelegateName        = "instruqt-workshop-delegate"
	defaultDelegateDescription = "Automatically created for this lab"
	defaultDelegatePermission  = "CLUSTER_ADMIN"
	delegateManifestFile       = "instruqt-delegate.yaml"
)

// DelegateParams describes a project-level Kubernetes delegate.
type DelegateParams struct {
	ProjectID string `json:"-" validate:"required,identifier"`
	OrgID     string `json:"-"`

	Name                  string `json:"name" validate:"omitempty,k8sname"`
	Description           string `json:"description"`
	ClusterPermissionType string `json:"clusterPermissionType" validate:"omitempty,oneof=CLUSTER_ADMIN CLUSTER_VIEWER NAMESPACE_ADMIN"`

	// OutputPath is where the manifest is saved. Empty means the lab work dir.
	OutputPath string `json:"-"`
}

// PipelineParams describes a pipeline to create from its YAML definition.
type PipelineParams struct {
	ProjectID string `json:"projectIdentifier" validate:"required,identifier"`
	OrgID     string `json:"orgIdentifier"`
	YAML      []byte `json:"-" validate:"required"`
}

// CreateDelegate downloads the manifest of a new delegate, validates it,
// saves it and applies it to the cluster. It returns the manifest path.
func (c *Client) CreateDelegate(ctx context.Context, p DelegateParams) (string, error) {
	p.ProjectID = c.projectOr(p.ProjectID)
	if err := validation.Struct(p); err != nil {
		return "", err
	}
	p.OrgID = c.orgOr(p.OrgID)
	if p.Name == "" {
		p.Name = DefaultDelegateName
	}
	if p.Description == "" {
		p.Description = defaultDelegateDescription
	}
	if p.ClusterPermissionType == "" {
		p.ClusterPermissionType = defaultDelegatePermission
	}
	if p.OutputPath == "" {
		p.OutputPath = c.workPath(delegateManifestFile)
	}

	resp, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     delegatePath,
		Query:    c.scope(p.OrgID, p.ProjectID),
		Encoding: http.EncodingJSON,
	}, p, http.Policy{MaxAttempts: 1, Success: http.Status2xx(), NonIdempotent: true})
	if err != nil {
		return "", fmt.Errorf("failed to create delegate %s: %w", p.Name, err)
	}

	if err := manifest.WriteFile(p.OutputPath, resp.Body); err != nil {
		return "", fmt.Errorf("delegate %s: %w", p.Name, err)
	}
	c.logger.Info().Str("delegate", p.Name).Str("path", p.OutputPath).Msg("Delegate manifest saved")

	if err := kube.ApplyManifests(ctx, c.runner, c.kubectl, []string{p.OutputPath}, ""); err != nil {
		return p.OutputPath, fmt.Errorf("delegate %s: %w", p.Name, err)
	}
	c.logger.Info().Str("delegate", p.Name).Msg("Delegate applied")
	return p.OutputPath, nil
}

// CreatePipeline validates the pipeline YAML and posts it to the project.
func (c *Client) CreatePipeline(ctx context.Context, p PipelineParams) error {
	p.ProjectID = c.projectOr(p.ProjectID)
	if err := validation.Struct(p); err != nil {
		return err
	}
	if err := manifest.ValidateBytes(p.YAML); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	p.OrgID = c.orgOr(p.OrgID)

	_, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     pipelinePath,
		Query:    c.scope(p.OrgID, p.ProjectID),
		Encoding: http.EncodingYAML,
	}, p.YAML, http.Policy{MaxAttempts: 1, Success: http.Status2xx(), NonIdempotent: true})
	if err != nil {
		return fmt.Errorf("failed to create pipeline in project %s: %w", p.ProjectID, err)
	}

	c.logger.Info().Str("project", p.ProjectID).Msg("Pipeline created")
	return nil
}
