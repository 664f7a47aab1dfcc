// Package commands holds the labctl subcommands. Each command loads the
// configuration, builds the package client it needs and runs one operation.
package commands

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
	"github.com/field-workshops/labkit/lab"
	"github.com/field-workshops/labkit/logger"
	"github.com/field-workshops/labkit/observability"
	"github.com/field-workshops/labkit/trace"
)

const metricsFlushTimeout = 5 * time.Second

// GlobalOptions holds the flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	// RunID correlates every call of this invocation. Empty means a fresh one.
	RunID string

	// Runner replaces the os/exec runner. Tests use it to fake the lab CLIs.
	Runner command.Runner
	// LogOutput receives log lines and stdout metric exports. Nil means stderr.
	LogOutput io.Writer

	version string
	metrics observability.Provider
}

// AddFlags registers the shared flags on the root command.
func (g *GlobalOptions) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", config.DefaultFile, "Configuration file")
	cmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.RunID, "run-id", "", "Correlation ID sent with every call (default random)")
}

// attachRunID puts the run ID on the context of the executing command.
func (g *GlobalOptions) attachRunID(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if g.RunID != "" {
		ctx = trace.WithRunID(ctx, g.RunID)
	} else {
		ctx, g.RunID = trace.EnsureRunID(ctx)
	}
	cmd.SetContext(ctx)
}

type session struct {
	cfg    *config.Config
	log    logger.Logger
	runner command.Runner
}

func (g *GlobalOptions) open() (*session, error) {
	cfg, err := config.LoadFrom(g.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if g.Verbose {
		level = "debug"
	}
	out := g.LogOutput
	if out == nil {
		out = os.Stderr
	}
	log := logger.NewWithWriter(out, level, cfg.Log.Pretty)

	if g.metrics == nil {
		provider, err := observability.Install(cfg.Metrics, observability.Service{Name: "labctl", Version: g.version}, out)
		if err != nil {
			return nil, err
		}
		g.metrics = provider
	}

	runner := g.Runner
	if runner == nil {
		runner = command.NewExecRunner(log, command.WithDir(cfg.Lab.WorkDir))
	}
	return &session{cfg: cfg, log: log, runner: runner}, nil
}

// Close flushes the metrics recorded during the run.
func (g *GlobalOptions) Close() error {
	if g.metrics == nil {
		return nil
	}
	err := observability.Shutdown(g.metrics, metricsFlushTimeout)
	g.metrics = nil
	return err
}

func (s *session) client() http.Client {
	return s.cfg.HTTP.ClientBuilder(s.log).Build()
}

func (s *session) sandbox() *lab.Sandbox {
	return lab.New(s.cfg, s.log, s.runner)
}

// failWith raises message in the lab UI when set, then returns err so the
// check exits non-zero either way.
func (s *session) failWith(ctx context.Context, message string, err error) error {
	if message == "" {
		return err
	}
	if ferr := s.sandbox().Fail(ctx, message); ferr != nil {
		s.log.Error().Err(ferr).Msg("Failed to raise failure message")
	}
	return err
}
