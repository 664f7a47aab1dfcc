// Package keycloak manages lab participants in the Keycloak identity
// provider through its admin REST API.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/logger"
	"github.com/field-workshops/labkit/validation"
)

const (
	adminRealm    = "master"
	adminClientID = "admin-cli"

	// DefaultLastName is set on users created without one.
	DefaultLastName = "Student"

	searchPageSize = "11"
)

// ErrUserNotFound is returned when a user search has no match.
var ErrUserNotFound = errors.New("user not found")

// UserParams describes a user to create.
type UserParams struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	// LastName defaults to DefaultLastName
	LastName string `json:"lastName"`
	Password string `json:"-" validate:"required"`
}

type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	Email           string       `json:"email"`
	Username        string       `json:"username"`
	FirstName       string       `json:"firstName"`
	LastName        string       `json:"lastName"`
	EmailVerified   bool         `json:"emailVerified"`
	Enabled         bool         `json:"enabled"`
	RequiredActions []string     `json:"requiredActions"`
	Groups          []string     `json:"groups"`
	Credentials     []credential `json:"credentials"`
}

// Client calls the admin API of one Keycloak realm.
type Client struct {
	http          http.Client
	logger        logger.Logger
	realm         string
	adminUser     string
	adminPassword string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the client built from configuration.
func WithHTTPClient(c http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client from the keycloak section of cfg.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.RequireKeycloak(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	realm := cfg.Keycloak.Realm
	if realm == "" {
		realm = adminRealm
	}
	c := &Client{
		http:          cfg.HTTP.ClientBuilder(log).WithBaseURL(cfg.Keycloak.Endpoint).Build(),
		logger:        log.WithFields(map[string]any{"component": "keycloak"}),
		realm:         realm,
		adminUser:     cfg.Keycloak.AdminUser,
		adminPassword: cfg.Keycloak.AdminPassword,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token obtains an access token with the password grant of the admin-cli
// client. With cleanup set a failure is logged and an empty token with a nil
// error is returned.
func (c *Client) Token(ctx context.Context, user, password string, cleanup bool) (string, error) {
	if user == "" || password == "" {
		return "", http.NewValidationError("user and password are required", "credentials")
	}

	form := url.Values{
		"username":   {user},
		"password":   {password},
		"grant_type": {"password"},
		"client_id":  {adminClientID},
	}
	resp, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     "/realms/" + adminRealm + "/protocol/openid-connect/token",
		Encoding: http.EncodingForm,
	}, form, http.SingleShot(http.All(http.StatusIn(nethttp.StatusOK), http.NonEmptyField("access_token"))))
	if err != nil {
		return "", http.Soften(c.logger, cleanup, "token", fmt.Errorf("token generation failed: %w", err))
	}

	token, err := resp.Field("access_token")
	if err != nil {
		return "", http.Soften(c.logger, cleanup, "token", fmt.Errorf("token generation failed: %w", err))
	}
	c.logger.Info().Str("user", user).Msg("Token generation complete")
	return token, nil
}

// AdminToken obtains a token for the configured admin user.
func (c *Client) AdminToken(ctx context.Context, cleanup bool) (string, error) {
	return c.Token(ctx, c.adminUser, c.adminPassword, cleanup)
}

// CreateUser creates an enabled, verified user whose username is its email.
// Only HTTP 201 counts as success.
func (c *Client) CreateUser(ctx context.Context, token string, p UserParams) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	if p.LastName == "" {
		p.LastName = DefaultLastName
	}

	user := userRepresentation{
		Email:           p.Email,
		Username:        p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		EmailVerified:   true,
		Enabled:         true,
		RequiredActions: []string{},
		Groups:          []string{},
		Credentials:     []credential{{Type: "password", Value: p.Password}},
	}

	_, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     c.usersPath(),
		Headers:  bearer(token),
		Encoding: http.EncodingJSON,
	}, user, http.Policy{MaxAttempts: 1, Success: http.StatusIn(nethttp.StatusCreated), NonIdempotent: true})
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", p.Email, err)
	}

	c.logger.Info().Str("email", p.Email).Str("realm", c.realm).Msg("User created")
	return nil
}

// UserID returns the id of the first user matching search, or ErrUserNotFound.
func (c *Client) UserID(ctx context.Context, token, search string) (string, error) {
	if search == "" {
		return "", http.NewValidationError("search term cannot be empty", "search")
	}

	resp, err := c.http.Execute(ctx, http.Endpoint{
		Method:  nethttp.MethodGet,
		Path:    c.usersPath(),
		Headers: bearer(token),
		Query: url.Values{
			"briefRepresentation": {"true"},
			"first":               {"0"},
			"max":                 {searchPageSize},
			"search":              {search},
		},
	}, nil, http.SingleShot(http.Status2xx()))
	if err != nil {
		return "", fmt.Errorf("user search for %s: %w", search, err)
	}

	id, err := resp.Field("[0]", "id")
	if err != nil || id == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, search)
	}
	c.logger.Debug().Str("search", search).Str("user_id", id).Msg("Resolved user")
	return id, nil
}

// DeleteUser deletes the user found by email. Only HTTP 204 counts as
// success. With cleanup set a failure, including an unknown user, is logged
// and nil is returned.
func (c *Client) DeleteUser(ctx context.Context, token, email string, cleanup bool) error {
	id, err := c.UserID(ctx, token, email)
	if err != nil {
		return http.Soften(c.logger, cleanup, "delete user", err)
	}

	_, err = c.http.Execute(ctx, http.Endpoint{
		Method:  nethttp.MethodDelete,
		Path:    c.usersPath() + "/" + url.PathEscape(id),
		Headers: bearer(token),
	}, nil, http.SingleShot(http.StatusIn(nethttp.StatusNoContent)))
	if err != nil {
		return http.Soften(c.logger, cleanup, "delete user",
			fmt.Errorf("failed to delete user %s: %w", email, err))
	}

	c.logger.Info().Str("email", email).Str("user_id", id).Msg("User deleted")
	return nil
}

func (c *Client) usersPath() string {
	return "/admin/realms/" + url.PathEscape(c.realm) + "/users"
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
