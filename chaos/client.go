// Package chaos talks to the chaos-engineering GraphQL API: registering
// chaos infrastructure, adding probes and fetching infrastructure manifests.
package chaos

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/harness"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/logger"
)

// GraphQLError is returned when a response carries an errors key, even
// with HTTP 200 or an empty list. It is never retried.
type GraphQLError struct {
	Kind     RequestKind
	Messages []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("graphql %s: %s", e.Kind, strings.Join(e.Messages, "; "))
}

// Identifiers scopes every query to an account, org and project.
type Identifiers struct {
	AccountIdentifier string `json:"accountIdentifier"`
	OrgIdentifier     string `json:"orgIdentifier"`
	ProjectIdentifier string `json:"projectIdentifier"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Client sends chaos API queries for one project.
type Client struct {
	http        http.Client
	logger      logger.Logger
	path        string
	ids         Identifiers
	manifestDir string
	workDir     string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the client built from configuration.
func WithHTTPClient(c http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client for the platform account and project in cfg.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.RequirePlatform(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		http: cfg.HTTP.ClientBuilder(log).
			WithBaseURL(cfg.Platform.BaseURL).
			WithDefaultHeader(harness.APIKeyHeader, cfg.Platform.APIKey).
			Build(),
		logger: log.WithFields(map[string]any{"component": "chaos"}),
		path:   cfg.Chaos.Path,
		ids: Identifiers{
			AccountIdentifier: cfg.Platform.AccountID,
			OrgIdentifier:     cfg.Platform.OrgID,
			ProjectIdentifier: cfg.Platform.ProjectID,
		},
		manifestDir: cfg.Chaos.ManifestDir,
		workDir:     cfg.Lab.WorkDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call sends the query of kind with variables bound to its parameter and
// returns the response once it is free of GraphQL errors. An unsupported
// kind fails before any network call.
func (c *Client) Call(ctx context.Context, kind RequestKind, variables any) (*http.Response, error) {
	query, err := BuildQuery(kind)
	if err != nil {
		return nil, err
	}
	shape, _ := kind.Shape()
	if variables == nil {
		variables = map[string]any{}
	}

	body := graphQLRequest{
		Query: query,
		Variables: map[string]any{
			shape.Param.Key: variables,
			"identifiers":   c.ids,
		},
	}

	resp, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     c.path,
		Encoding: http.EncodingJSON,
	}, body, http.Policy{MaxAttempts: 1, Success: http.Status2xx(), NonIdempotent: kind.Mutation()})
	if err != nil {
		return resp, fmt.Errorf("chaos %s: %w", kind, err)
	}
	if !resp.JSON {
		return resp, http.NewRejectionError(fmt.Sprintf("chaos %s: response is not JSON", kind), resp.StatusCode, resp.Body)
	}
	if gqlErr := graphQLErrors(kind, resp); gqlErr != nil {
		c.logger.Error().Str("kind", kind.String()).Err(gqlErr).Msg("GraphQL errors in response")
		return resp, gqlErr
	}

	c.logger.Debug().Str("kind", kind.String()).Msg("Chaos API call complete")
	return resp, nil
}

func graphQLErrors(kind RequestKind, resp *http.Response) error {
	raw, dataType, _, err := jsonparser.Get(resp.Body, "errors")
	if err != nil {
		return nil
	}
	if dataType != jsonparser.Array {
		return &GraphQLError{Kind: kind, Messages: []string{string(raw)}}
	}

	var messages []string
	_, _ = jsonparser.ArrayEach(raw, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		msg, err := jsonparser.GetString(value, "message")
		if err != nil {
			msg = string(value)
		}
		messages = append(messages, msg)
	})
	if len(messages) == 0 {
		messages = []string{string(raw)}
	}
	return &GraphQLError{Kind: kind, Messages: messages}
}
