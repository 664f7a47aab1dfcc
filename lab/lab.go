// Package lab wraps the participant sandbox: track variables, failure
// messages shown to the participant, and per-participant cluster credentials.
package lab

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	nethttp "net/http"
	"strconv"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
	"github.com/field-workshops/labkit/logger"
	"github.com/field-workshops/labkit/manifest"
	"github.com/field-workshops/labkit/validation"
)

const suffixLength = 10

// Sandbox runs helpers against the lab agent of the current sandbox.
type Sandbox struct {
	runner       command.Runner
	http         http.Client
	logger       logger.Logger
	agent        string
	failCmd      string
	generatorURL string
}

// Option customizes a Sandbox.
type Option func(*Sandbox)

// WithHTTPClient replaces the client built from configuration.
func WithHTTPClient(c http.Client) Option {
	return func(s *Sandbox) { s.http = c }
}

// New creates a Sandbox from the lab section of cfg.
func New(cfg *config.Config, log logger.Logger, runner command.Runner, opts ...Option) *Sandbox {
	if log == nil {
		log = logger.Nop()
	}
	s := &Sandbox{
		runner:       runner,
		http:         cfg.HTTP.ClientBuilder(log).Build(),
		logger:       log.WithFields(map[string]any{"component": "lab"}),
		agent:        cfg.Lab.Agent,
		failCmd:      cfg.Lab.FailCmd,
		generatorURL: cfg.Lab.GeneratorURL,
	}
	if s.agent == "" {
		s.agent = "agent"
	}
	if s.failCmd == "" {
		s.failCmd = "fail-message"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Variable reads a track variable through the lab agent.
func (s *Sandbox) Variable(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", http.NewValidationError("variable name cannot be empty", "name")
	}
	res, err := s.runner.Run(ctx, s.agent, "variable", "get", name)
	if err != nil {
		return "", fmt.Errorf("failed to read variable %s: %w", name, err)
	}
	return res.Output(), nil
}

// SetVariable stores a track variable through the lab agent.
func (s *Sandbox) SetVariable(ctx context.Context, name, value string) error {
	if name == "" {
		return http.NewValidationError("variable name cannot be empty", "name")
	}
	if _, err := s.runner.Run(ctx, s.agent, "variable", "set", name, value); err != nil {
		return fmt.Errorf("failed to set variable %s: %w", name, err)
	}
	s.logger.Debug().Str("variable", name).Msg("Variable set")
	return nil
}

// Fail shows message to the participant after a failed check.
func (s *Sandbox) Fail(ctx context.Context, message string) error {
	s.logger.Warn().Str("message", message).Msg("Raising lab failure message")
	if _, err := s.runner.Run(ctx, s.failCmd, message); err != nil {
		return fmt.Errorf("failed to raise failure message: %w", err)
	}
	return nil
}

// RunShell runs command through sh -c.
func (s *Sandbox) RunShell(ctx context.Context, cmd string) error {
	if cmd == "" {
		return http.NewValidationError("command cannot be empty", "command")
	}
	if _, err := s.runner.Run(ctx, "sh", "-c", cmd); err != nil {
		return fmt.Errorf("command %q failed: %w", cmd, err)
	}
	s.logger.Info().Str("command", cmd).Msg("Command executed")
	return nil
}

// RandomSuffix returns 10 hex characters of the MD5 of a random number in
// [0, 32767], for names that must differ between participants.
func RandomSuffix() string {
	sum := md5.Sum([]byte(strconv.Itoa(rand.IntN(32768))))
	return hex.EncodeToString(sum[:])[:suffixLength]
}

type generatorRequest struct {
	Username string `json:"username" validate:"required"`
}

// GenerateClusterCredentials asks the credentials generator for a kubeconfig
// scoped to user and writes it to outputFile.
func (s *Sandbox) GenerateClusterCredentials(ctx context.Context, user, outputFile string) error {
	if outputFile == "" {
		return http.NewValidationError("output file cannot be empty", "outputFile")
	}
	resp, err := s.callGenerator(ctx, "/create-user", user)
	if err != nil {
		return err
	}
	if err := manifest.WriteFile(outputFile, resp.Body); err != nil {
		return fmt.Errorf("cluster credentials for %s: %w", user, err)
	}
	s.logger.Info().Str("user", user).Str("path", outputFile).Msg("Cluster credentials saved")
	return nil
}

// RevokeClusterCredentials removes the environment generated for user.
func (s *Sandbox) RevokeClusterCredentials(ctx context.Context, user string) error {
	if _, err := s.callGenerator(ctx, "/delete-user", user); err != nil {
		return err
	}
	s.logger.Info().Str("user", user).Msg("Cluster credentials revoked")
	return nil
}

func (s *Sandbox) callGenerator(ctx context.Context, path, user string) (*http.Response, error) {
	if s.generatorURL == "" {
		return nil, config.NewNotConfiguredError("cluster credentials generator", "lab.generatorurl")
	}
	body := generatorRequest{Username: user}
	if err := validation.Struct(body); err != nil {
		return nil, err
	}

	resp, err := s.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		URL:      s.generatorURL + path,
		Encoding: http.EncodingJSON,
	}, body, http.Policy{MaxAttempts: 1, Success: http.Status2xx(), NonIdempotent: true})
	if err != nil {
		return nil, fmt.Errorf("cluster credentials generator %s for %s: %w", path, user, err)
	}
	return resp, nil
}
