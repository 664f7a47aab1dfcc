package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/lab"
)

// NewLabCommand creates the sandbox plumbing commands.
func NewLabCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lab",
		Short: "Track variables, failure messages and participant credentials",
	}

	vars := &cobra.Command{Use: "var", Short: "Read or write track variables"}
	vars.AddCommand(newVarGetCommand(g), newVarSetCommand(g))

	creds := &cobra.Command{Use: "creds", Short: "Manage per-participant cluster credentials"}
	creds.AddCommand(newCredsGenerateCommand(g), newCredsRevokeCommand(g))

	cmd.AddCommand(vars, creds, newFailCommand(g), newSuffixCommand(), newShellCommand(g))
	return cmd
}

func openSandbox(g *GlobalOptions) (*lab.Sandbox, error) {
	s, err := g.open()
	if err != nil {
		return nil, err
	}
	return s.sandbox(), nil
}

func newVarGetCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print a track variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sb, err := openSandbox(g)
			if err != nil {
				return err
			}
			value, err := sb.Variable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newVarSetCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Store a track variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sb, err := openSandbox(g)
			if err != nil {
				return err
			}
			return sb.SetVariable(cmd.Context(), args[0], args[1])
		},
	}
}

func newFailCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fail MESSAGE...",
		Short: "Show a failure message to the participant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sb, err := openSandbox(g)
			if err != nil {
				return err
			}
			return sb.Fail(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func newSuffixCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suffix",
		Short: "Print a random 10 character hex suffix",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), lab.RandomSuffix())
		},
	}
}

func newShellCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sh COMMAND",
		Short: "Run a shell command and fail when it fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sb, err := openSandbox(g)
			if err != nil {
				return err
			}
			return sb.RunShell(cmd.Context(), args[0])
		},
	}
}

func newCredsGenerateCommand(g *GlobalOptions) *cobra.Command {
	var user, out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a kubeconfig scoped to a participant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sb, err := openSandbox(g)
			if err != nil {
				return err
			}
			return sb.GenerateClusterCredentials(cmd.Context(), user, out)
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Participant user name")
	cmd.Flags().StringVarP(&out, "out", "o", "kubeconfig.yaml", "Output file")
	return cmd
}

func newCredsRevokeCommand(g *GlobalOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Remove the environment generated for a participant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sb, err := openSandbox(g)
			if err != nil {
				return err
			}
			return sb.RevokeClusterCredentials(cmd.Context(), user)
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Participant user name")
	return cmd
}
