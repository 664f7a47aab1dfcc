// Package system manages the sandbox host: systemd units, the hosts file and
// the in-browser code editor.
package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
	"github.com/field-workshops/labkit/logger"
)

const (
	// DefaultUnitDir is where systemd looks for administrator units
	DefaultUnitDir = "/etc/systemd/system"

	systemctl = "systemctl"
)

// Manager performs host changes through a command runner.
type Manager struct {
	runner  command.Runner
	client  http.Client
	logger  logger.Logger
	unitDir string
}

// NewManager creates a Manager. client downloads editor assets.
func NewManager(runner command.Runner, client http.Client, log logger.Logger, unitDir string) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if unitDir == "" {
		unitDir = DefaultUnitDir
	}
	return &Manager{runner: runner, client: client, logger: log, unitDir: unitDir}
}

// CreateService writes <unitDir>/<name>.service, reloads systemd, then
// enables and starts the unit.
func (m *Manager) CreateService(ctx context.Context, name, content string) error {
	if name == "" {
		return http.NewValidationError("service name cannot be empty", "name")
	}

	path := filepath.Join(m.unitDir, name+".service")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write unit %s: %w", path, err)
	}

	steps := [][]string{
		{"daemon-reload"},
		{"enable", name},
		{"start", name},
	}
	for _, args := range steps {
		if _, err := m.runner.Run(ctx, systemctl, args...); err != nil {
			return fmt.Errorf("systemctl %s: %w", args[0], err)
		}
	}

	m.logger.Info().Str("service", name).Str("unit", path).Msg("Service created and started")
	return nil
}
