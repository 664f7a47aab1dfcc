package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/system"
)

// NewSystemCommand creates the sandbox host commands.
func NewSystemCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Configure the sandbox host",
	}
	cmd.AddCommand(
		newEditorCommand(g),
		newServiceCommand(g),
		newHostsCommand(g),
	)
	return cmd
}

func openSystem(g *GlobalOptions) (*session, *system.Manager, error) {
	s, err := g.open()
	if err != nil {
		return nil, nil, err
	}
	return s, system.NewManager(s.runner, s.client(), s.log, s.cfg.Editor.UnitDir), nil
}

func newEditorCommand(g *GlobalOptions) *cobra.Command {
	var (
		port      int
		directory string
	)
	cmd := &cobra.Command{
		Use:   "editor",
		Short: "Install and start the in-browser code editor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, m, err := openSystem(g)
			if err != nil {
				return err
			}
			e := s.cfg.Editor
			if port != 0 {
				e.Port = port
			}
			if directory != "" {
				e.Directory = directory
			}
			return m.SetupEditor(cmd.Context(), system.EditorParams{
				Port:         e.Port,
				Directory:    e.Directory,
				User:         e.User,
				Home:         e.Home,
				Binary:       e.Binary,
				InstallerURL: e.InstallerURL,
				SettingsURL:  e.SettingsURL,
				UnitURL:      e.UnitURL,
				Extension:    e.Extension,
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Editor port (default from config)")
	cmd.Flags().StringVarP(&directory, "directory", "d", "", "Directory opened by the editor (default from config)")
	return cmd
}

func newServiceCommand(g *GlobalOptions) *cobra.Command {
	var name, file string
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install, enable and start a systemd unit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read unit: %w", err)
			}
			_, m, err := openSystem(g)
			if err != nil {
				return err
			}
			return m.CreateService(cmd.Context(), name, string(content))
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Service name")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Unit file content")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newHostsCommand(g *GlobalOptions) *cobra.Command {
	var ip, hostname string
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Map a hostname to an IP in the hosts file",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			return system.UpdateHosts(s.cfg.Kube.HostsFile, ip, hostname)
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "IP address")
	cmd.Flags().StringVar(&hostname, "hostname", "", "Host name")
	return cmd
}
