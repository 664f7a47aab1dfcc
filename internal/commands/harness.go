package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/harness"
)

var errNoLogin = errors.New("no recent login found")

// NewHarnessCommand creates the platform account commands.
func NewHarnessCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harness",
		Short: "Manage platform projects, users, delegates and pipelines",
	}
	cmd.AddCommand(
		newVerifyLoginCommand(g),
		newCreateProjectCommand(g),
		newInviteUserCommand(g),
		newDeleteProjectCommand(g),
		newDeleteUserCommand(g),
		newCreateDelegateCommand(g),
		newCreatePipelineCommand(g),
	)
	return cmd
}

func openHarness(g *GlobalOptions) (*session, *harness.Client, error) {
	s, err := g.open()
	if err != nil {
		return nil, nil, err
	}
	c, err := harness.New(s.cfg, s.log, s.runner)
	if err != nil {
		return nil, nil, err
	}
	return s, c, nil
}

// VerifyLoginOptions holds the verify-login flags.
type VerifyLoginOptions struct {
	User        string
	FailMessage string
}

func newVerifyLoginCommand(g *GlobalOptions) *cobra.Command {
	opts := &VerifyLoginOptions{}
	cmd := &cobra.Command{
		Use:   "verify-login",
		Short: "Check that a user logged in during the last five minutes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, c, err := openHarness(g)
			if err != nil {
				return err
			}
			found, err := c.VerifyLogin(cmd.Context(), opts.User)
			if err != nil {
				return err
			}
			if !found {
				return s.failWith(cmd.Context(), opts.FailMessage, fmt.Errorf("%w for %s", errNoLogin, opts.User))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Login found for %s\n", opts.User)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "User email")
	cmd.Flags().StringVar(&opts.FailMessage, "fail-message", "", "Message shown to the participant when no login is found")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCreateProjectCommand(g *GlobalOptions) *cobra.Command {
	p := harness.ProjectParams{}
	cmd := &cobra.Command{
		Use:   "create-project",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, c, err := openHarness(g)
			if err != nil {
				return err
			}
			return c.CreateProject(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVarP(&p.Identifier, "id", "i", "", "Project identifier")
	cmd.Flags().StringVarP(&p.Name, "name", "n", "", "Project name (defaults to the identifier)")
	cmd.Flags().StringVar(&p.OrgID, "org", "", "Organization identifier")
	cmd.Flags().StringVar(&p.Description, "description", "", "Project description")
	cmd.Flags().StringToStringVar(&p.Tags, "tag", nil, "Project tags as key=value")
	return cmd
}

func newInviteUserCommand(g *GlobalOptions) *cobra.Command {
	p := harness.InviteParams{}
	cmd := &cobra.Command{
		Use:   "invite-user",
		Short: "Invite a user to a project as project admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, c, err := openHarness(g)
			if err != nil {
				return err
			}
			return c.InviteUser(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVarP(&p.Email, "email", "e", "", "User email")
	cmd.Flags().StringVarP(&p.ProjectID, "project", "p", "", "Project identifier")
	cmd.Flags().StringVar(&p.OrgID, "org", "", "Organization identifier")
	return cmd
}

func newDeleteProjectCommand(g *GlobalOptions) *cobra.Command {
	var (
		id      string
		cleanup bool
	)
	cmd := &cobra.Command{
		Use:   "delete-project",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, c, err := openHarness(g)
			if err != nil {
				return err
			}
			return c.DeleteProject(cmd.Context(), id, cleanup)
		},
	}
	cmd.Flags().StringVarP(&id, "id", "i", "", "Project identifier")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Log failures instead of exiting non-zero")
	return cmd
}

func newDeleteUserCommand(g *GlobalOptions) *cobra.Command {
	var (
		email   string
		cleanup bool
	)
	cmd := &cobra.Command{
		Use:   "delete-user",
		Short: "Delete an account user by email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, c, err := openHarness(g)
			if err != nil {
				return err
			}
			return c.DeleteUser(cmd.Context(), email, cleanup)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "User email")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Log failures instead of exiting non-zero")
	return cmd
}

func newCreateDelegateCommand(g *GlobalOptions) *cobra.Command {
	p := harness.DelegateParams{}
	cmd := &cobra.Command{
		Use:   "create-delegate",
		Short: "Download a delegate manifest and apply it to the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, c, err := openHarness(g)
			if err != nil {
				return err
			}
			path, err := c.CreateDelegate(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&p.ProjectID, "project", "p", "", "Project identifier")
	cmd.Flags().StringVar(&p.OrgID, "org", "", "Organization identifier")
	cmd.Flags().StringVarP(&p.Name, "name", "n", "", "Delegate name")
	cmd.Flags().StringVar(&p.Description, "description", "", "Delegate description")
	cmd.Flags().StringVar(&p.ClusterPermissionType, "permission", "", "CLUSTER_ADMIN, CLUSTER_VIEWER or NAMESPACE_ADMIN")
	cmd.Flags().StringVarP(&p.OutputPath, "output", "o", "", "Where to save the manifest")
	return cmd
}

func newCreatePipelineCommand(g *GlobalOptions) *cobra.Command {
	var (
		p    harness.PipelineParams
		file string
	)
	cmd := &cobra.Command{
		Use:   "create-pipeline",
		Short: "Create a pipeline from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read pipeline: %w", err)
			}
			_, c, err := openHarness(g)
			if err != nil {
				return err
			}
			p.YAML = data
			return c.CreatePipeline(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVarP(&p.ProjectID, "project", "p", "", "Project identifier")
	cmd.Flags().StringVar(&p.OrgID, "org", "", "Organization identifier")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Pipeline YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
