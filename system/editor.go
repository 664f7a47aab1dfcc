package system

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
	"github.com/field-workshops/labkit/validation"
)

const (
	editorService = "code-server"

	placeholderPort      = "EXAMPLEPORT"
	placeholderDirectory = "EXAMPLEDIRECTORY"
)

// EditorParams configures the in-browser editor installation.
type EditorParams struct {
	Port      int    `json:"port" validate:"min=1,max=65535"`
	Directory string `json:"directory" validate:"required"`
	// User owns the editor data directory. Empty skips the ownership change.
	User         string `json:"user"`
	Home         string `json:"home" validate:"required"`
	Binary       string `json:"binary" validate:"required"`
	InstallerURL string `json:"installerUrl" validate:"required,http_url"`
	SettingsURL  string `json:"settingsUrl" validate:"required,http_url"`
	UnitURL      string `json:"unitUrl" validate:"required,http_url"`
	Extension    string `json:"extension"`
	// InstallerPath is where the installer script is saved. Empty means the temp dir.
	InstallerPath string `json:"installerPath"`
}

// SetupEditor installs the editor when absent, writes its settings, creates
// its systemd service and installs the configured extension.
func (m *Manager) SetupEditor(ctx context.Context, p EditorParams) error {
	if err := validation.Struct(p); err != nil {
		return err
	}

	installed, err := m.isInstalled(ctx, p.Binary)
	if err != nil {
		return err
	}
	if installed {
		m.logger.Info().Str("binary", p.Binary).Msg("Editor already installed")
	} else {
		m.logger.Info().Str("binary", p.Binary).Msg("Installing editor")
		if err := m.install(ctx, p); err != nil {
			return err
		}
	}

	userDir := filepath.Join(p.Home, ".local", "share", "code-server", "User")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", userDir, err)
	}
	if p.User != "" {
		if err := chownUser(filepath.Join(p.Home, ".local", "share"), p.User); err != nil {
			return err
		}
	}

	settings, err := m.download(ctx, p.SettingsURL)
	if err != nil {
		return fmt.Errorf("editor settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "settings.json"), settings, 0o644); err != nil {
		return fmt.Errorf("failed to write editor settings: %w", err)
	}

	unit, err := m.download(ctx, p.UnitURL)
	if err != nil {
		return fmt.Errorf("editor unit: %w", err)
	}
	content := strings.NewReplacer(
		placeholderPort, strconv.Itoa(p.Port),
		placeholderDirectory, p.Directory,
	).Replace(string(unit))

	if err := m.CreateService(ctx, editorService, content); err != nil {
		return err
	}

	if p.Extension != "" {
		if _, err := m.runner.Run(ctx, p.Binary, "--install-extension", p.Extension); err != nil {
			return fmt.Errorf("failed to install extension %s: %w", p.Extension, err)
		}
	}

	m.logger.Info().Int("port", p.Port).Str("directory", p.Directory).Msg("Editor ready")
	return nil
}

// isInstalled reports whether binary is on PATH. A non-zero exit of which
// means absent; any other failure is returned.
func (m *Manager) isInstalled(ctx context.Context, binary string) (bool, error) {
	_, err := m.runner.Run(ctx, "which", binary)
	if err == nil {
		return true, nil
	}
	if command.IsExitError(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up %s: %w", binary, err)
}

func (m *Manager) install(ctx context.Context, p EditorParams) error {
	script, err := m.download(ctx, p.InstallerURL)
	if err != nil {
		return fmt.Errorf("editor installer: %w", err)
	}

	path := p.InstallerPath
	if path == "" {
		path = filepath.Join(os.TempDir(), "install.sh")
	}
	if err := os.WriteFile(path, script, 0o755); err != nil {
		return fmt.Errorf("failed to write installer: %w", err)
	}

	if _, err := m.runner.Run(ctx, "bash", path); err != nil {
		return fmt.Errorf("editor installer failed: %w", err)
	}
	return nil
}

func (m *Manager) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := m.client.Get(ctx, &http.Request{URL: url})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func chownUser(path, username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("failed to look up user %s: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("user %s has non-numeric uid %q", username, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("user %s has non-numeric gid %q", username, u.Gid)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to chown %s: %w", path, err)
	}
	return nil
}
