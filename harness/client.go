// Package harness wraps the SaaS delivery platform REST API used to prepare
// and tear down a lab: login audits, projects, user invitations, delegates
// and pipelines.
package harness

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
	"github.com/field-workshops/labkit/logger"
)

// APIKeyHeader carries the platform API key on every call.
const APIKeyHeader = "x-api-key"

const (
	auditListPath     = "/gateway/audit/api/audits/list"
	projectsPath      = "/gateway/ng/api/projects"
	inviteUsersPath   = "/gateway/ng/api/user/users"
	userAggregatePath = "/gateway/ng/api/user/aggregate"
	userPath          = "/gateway/ng/api/user"
	delegatePath      = "/gateway/ng/api/download-delegates/kubernetes"
	pipelinePath      = "/pipeline/api/pipelines/v2"

	statusSuccess = "SUCCESS"
)

// Client performs platform operations for one account.
type Client struct {
	http    http.Client
	logger  logger.Logger
	runner  command.Runner
	account string
	org     string
	project string
	kubectl string
	workDir string
	invite  http.Policy
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the client built from configuration.
func WithHTTPClient(c http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithClock sets the time source of the login audit window.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New creates a Client from the platform section of cfg. The runner applies
// delegate manifests.
func New(cfg *config.Config, log logger.Logger, runner command.Runner, opts ...Option) (*Client, error) {
	if err := cfg.RequirePlatform(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		http: cfg.HTTP.ClientBuilder(log).
			WithBaseURL(cfg.Platform.BaseURL).
			WithDefaultHeader(APIKeyHeader, cfg.Platform.APIKey).
			Build(),
		logger:  log.WithFields(map[string]any{"component": "harness"}),
		runner:  runner,
		account: cfg.Platform.AccountID,
		org:     cfg.Platform.OrgID,
		project: cfg.Platform.ProjectID,
		kubectl: cfg.Kube.Kubectl,
		workDir: cfg.Lab.WorkDir,
		invite:  cfg.Retry.Invite.Policy(http.FieldEquals(statusSuccess, "status")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// scope builds the identifier query of an account, org or project call.
// Empty org or project values are left out.
func (c *Client) scope(org, project string) url.Values {
	q := url.Values{"accountIdentifier": {c.account}}
	if org != "" {
		q.Set("orgIdentifier", org)
	}
	if project != "" {
		q.Set("projectIdentifier", project)
	}
	return q
}

func (c *Client) orgOr(org string) string {
	if org == "" {
		return c.org
	}
	return org
}

func (c *Client) projectOr(project string) string {
	if project == "" {
		return c.project
	}
	return project
}

func (c *Client) workPath(name string) string {
	if c.workDir == "" {
		return name
	}
	return filepath.Join(c.workDir, name)
}
