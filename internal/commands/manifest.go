package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/manifest"
)

// NewManifestCommand creates the template and YAML commands.
func NewManifestCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Render lab templates and validate YAML manifests",
	}
	cmd.AddCommand(
		newRenderCommand(g),
		newValidateCommand(),
		newCredentialsCommand(g),
	)
	return cmd
}

// RenderOptions holds the render flags.
type RenderOptions struct {
	Template string
	OutDir   string
	Apps     string
}

func newRenderCommand(g *GlobalOptions) *cobra.Command {
	opts := &RenderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one manifest per app from a template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			apps, err := manifest.ParseApps(opts.Apps)
			if err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			paths, err := manifest.RenderApps(opts.Template, opts.OutDir, apps, manifest.Sandbox{
				HostName:      s.cfg.Lab.HostName,
				ParticipantID: s.cfg.Lab.ParticipantID,
			})
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.Template, "template", "t", "", "Template file")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVarP(&opts.Apps, "apps", "a", "", "Apps as name:port:ip,name:port:ip")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("apps")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check that files are well-formed YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := manifest.ValidateFile(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			return nil
		},
	}
}

func parseCredential(raw string) (manifest.Credential, error) {
	parts := strings.SplitN(raw, ",", 4)
	if len(parts) != 4 || parts[0] == "" {
		return manifest.Credential{}, http.NewValidationError(
			fmt.Sprintf("credential %q must be name,url,username,password", raw), "credential")
	}
	return manifest.Credential{Name: parts[0], URL: parts[1], Username: parts[2], Password: parts[3]}, nil
}

func newCredentialsCommand(g *GlobalOptions) *cobra.Command {
	var (
		raw     []string
		out     string
		builtin bool
	)
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Render the participant credentials page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds := make([]manifest.Credential, 0, len(raw))
			for _, r := range raw {
				c, err := parseCredential(r)
				if err != nil {
					return err
				}
				creds = append(creds, c)
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			templateURL := s.cfg.Credentials.TemplateURL
			if builtin {
				templateURL = ""
			}
			page, err := manifest.CredentialsHTML(cmd.Context(), s.client(), templateURL, creds)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), page)
				return err
			}
			if err := os.WriteFile(out, []byte(page), 0o644); err != nil {
				return fmt.Errorf("failed to write credentials page: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&raw, "credential", nil, "Credential as name,url,username,password (repeatable)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&builtin, "builtin", false, "Use the built-in template instead of downloading one")
	return cmd
}
