package harness

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/validation"
)

const (
	// DefaultProjectDescription is set on projects created without one.
	DefaultProjectDescription = "Automated build via Instruqt."

	projectUsersGroup    = "_project_all_users"
	projectResourceGroup = "_all_project_level_resources"
	projectAdminRole     = "_project_admin"
)

// ErrUserNotFound is returned when a user search has no match.
var ErrUserNotFound = errors.New("user not found")

// DefaultProjectTags are set on projects created without tags.
var DefaultProjectTags = map[string]string{
	"automated": "yes",
	"owner":     "instruqt",
}

// ProjectParams describes a project to create.
type ProjectParams struct {
	Identifier string `json:"identifier" validate:"required,identifier"`
	// Name defaults to Identifier
	Name        string            `json:"name"`
	OrgID       string            `json:"orgIdentifier"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
}

// InviteParams describes a project invitation.
type InviteParams struct {
	Email     string `json:"email" validate:"required,email"`
	ProjectID string `json:"projectIdentifier" validate:"required,identifier"`
	OrgID     string `json:"orgIdentifier"`
}

type roleBinding struct {
	ResourceGroupIdentifier string `json:"resourceGroupIdentifier"`
	RoleIdentifier          string `json:"roleIdentifier"`
	RoleName                string `json:"roleName"`
	ResourceGroupName       string `json:"resourceGroupName"`
	ManagedRole             bool   `json:"managedRole"`
}

type inviteRequest struct {
	Emails       []string      `json:"emails"`
	UserGroups   []string      `json:"userGroups"`
	RoleBindings []roleBinding `json:"roleBindings"`
}

// CreateProject creates a project. It is a single attempt; any answer other
// than status SUCCESS is an error.
func (c *Client) CreateProject(ctx context.Context, p ProjectParams) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	p.OrgID = c.orgOr(p.OrgID)
	if p.Name == "" {
		p.Name = p.Identifier
	}
	if p.Description == "" {
		p.Description = DefaultProjectDescription
	}
	if p.Tags == nil {
		p.Tags = DefaultProjectTags
	}

	_, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     projectsPath,
		Query:    c.scope(p.OrgID, ""),
		Encoding: http.EncodingJSON,
	}, map[string]ProjectParams{"project": p}, http.Policy{
		MaxAttempts:   1,
		Success:       http.FieldEquals(statusSuccess, "status"),
		NonIdempotent: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create project %s: %w", p.Identifier, err)
	}

	c.logger.Info().Str("project", p.Identifier).Str("org", p.OrgID).Msg("Project created")
	return nil
}

// InviteUser invites a user as project admin, retrying with the configured
// invite policy until the platform reports status SUCCESS.
func (c *Client) InviteUser(ctx context.Context, p InviteParams) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	p.OrgID = c.orgOr(p.OrgID)

	body := inviteRequest{
		Emails:     []string{p.Email},
		UserGroups: []string{projectUsersGroup},
		RoleBindings: []roleBinding{{
			ResourceGroupIdentifier: projectResourceGroup,
			RoleIdentifier:          projectAdminRole,
			RoleName:                "Project Admin",
			ResourceGroupName:       "All Project Level Resources",
			ManagedRole:             true,
		}},
	}

	c.logger.Info().Str("email", p.Email).Str("project", p.ProjectID).Msg("Inviting user to project")
	_, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     inviteUsersPath,
		Query:    c.scope(p.OrgID, p.ProjectID),
		Encoding: http.EncodingJSON,
	}, body, c.invite)
	if err != nil {
		return fmt.Errorf("failed to invite %s to project %s: %w", p.Email, p.ProjectID, err)
	}

	c.logger.Info().Str("email", p.Email).Str("project", p.ProjectID).Msg("User invited")
	return nil
}

// DeleteProject deletes a project. With cleanup set a failure is logged and
// nil is returned.
func (c *Client) DeleteProject(ctx context.Context, projectID string, cleanup bool) error {
	if err := validation.Struct(struct {
		ProjectID string `json:"projectIdentifier" validate:"required,identifier"`
	}{projectID}); err != nil {
		return err
	}

	_, err := c.http.Execute(ctx, http.Endpoint{
		Method: nethttp.MethodDelete,
		Path:   projectsPath + "/" + url.PathEscape(projectID),
		Query:  c.scope(c.org, ""),
	}, nil, http.SingleShot(http.FieldEquals(statusSuccess, "status")))
	if err != nil {
		return http.Soften(c.logger, cleanup, "delete project",
			fmt.Errorf("failed to delete project %s: %w", projectID, err))
	}

	c.logger.Info().Str("project", projectID).Msg("Project deleted")
	return nil
}

// UserID returns the id of the first user matching searchTerm, or
// ErrUserNotFound.
func (c *Client) UserID(ctx context.Context, searchTerm string) (string, error) {
	if searchTerm == "" {
		return "", http.NewValidationError("search term cannot be empty", "searchTerm")
	}

	q := c.scope("", "")
	q.Set("searchTerm", searchTerm)
	resp, err := c.http.Execute(ctx, http.Endpoint{
		Method: nethttp.MethodPost,
		Path:   userAggregatePath,
		Query:  q,
	}, nil, http.SingleShot(http.Status2xx()))
	if err != nil {
		return "", fmt.Errorf("user search for %s: %w", searchTerm, err)
	}

	id, err := resp.Field("data", "content", "[0]", "user", "uuid")
	if err != nil || id == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, searchTerm)
	}
	c.logger.Debug().Str("search", searchTerm).Str("user_id", id).Msg("Resolved user")
	return id, nil
}

// DeleteUser removes the user found by email from the account. With cleanup
// set a failure, including an unknown user, is logged and nil is returned.
func (c *Client) DeleteUser(ctx context.Context, email string, cleanup bool) error {
	id, err := c.UserID(ctx, email)
	if err != nil {
		return http.Soften(c.logger, cleanup, "delete user", err)
	}

	_, err = c.http.Execute(ctx, http.Endpoint{
		Method: nethttp.MethodDelete,
		Path:   userPath + "/" + url.PathEscape(id),
		Query:  c.scope("", ""),
	}, nil, http.SingleShot(http.FieldEquals(statusSuccess, "status")))
	if err != nil {
		return http.Soften(c.logger, cleanup, "delete user",
			fmt.Errorf("failed to delete user %s: %w", email, err))
	}

	c.logger.Info().Str("email", email).Str("user_id", id).Msg("User deleted")
	return nil
}
