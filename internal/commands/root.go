package commands

import "github.com/spf13/cobra"

// NewRootCommand assembles labctl. g receives the global flags.
func NewRootCommand(version string, g *GlobalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "labctl",
		Short: "Provision and tear down training lab environments",
		Long: `labctl runs the setup, check and cleanup steps of a training lab:
platform projects and users, chaos infrastructure, identity provider users,
cluster resources, manifests and the in-browser editor.`,
		Version:          version,
		SilenceUsage:     true,
		SilenceErrors:    true,
		PersistentPreRun: g.attachRunID,
	}
	g.version = version
	g.AddFlags(root)
	root.AddCommand(
		NewHarnessCommand(g),
		NewChaosCommand(g),
		NewKeycloakCommand(g),
		NewKubeCommand(g),
		NewManifestCommand(g),
		NewSystemCommand(g),
		NewLabCommand(g),
		NewVersionCommand(version),
	)
	return root
}
