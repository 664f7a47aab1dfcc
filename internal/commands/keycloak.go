package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/keycloak"
)

// NewKeycloakCommand creates the identity provider commands. Every command
// authenticates with the configured admin user first.
func NewKeycloakCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keycloak",
		Short: "Manage identity provider users",
	}
	cmd.AddCommand(
		newKeycloakTokenCommand(g),
		newKeycloakCreateUserCommand(g),
		newKeycloakUserIDCommand(g),
		newKeycloakDeleteUserCommand(g),
	)
	return cmd
}

func openKeycloak(g *GlobalOptions) (*keycloak.Client, error) {
	s, err := g.open()
	if err != nil {
		return nil, err
	}
	return keycloak.New(s.cfg, s.log)
}

// adminToken returns the client and an admin token. With cleanup set an
// authentication failure yields an empty token and no error.
func adminToken(ctx context.Context, g *GlobalOptions, cleanup bool) (*keycloak.Client, string, error) {
	c, err := openKeycloak(g)
	if err != nil {
		return nil, "", err
	}
	token, err := c.AdminToken(ctx, cleanup)
	return c, token, err
}

func newKeycloakTokenCommand(g *GlobalOptions) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token (the admin user when no credentials are given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openKeycloak(g)
			if err != nil {
				return err
			}
			var token string
			if user == "" {
				token, err = c.AdminToken(cmd.Context(), false)
			} else {
				token, err = c.Token(cmd.Context(), user, password, false)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	return cmd
}

func newKeycloakCreateUserCommand(g *GlobalOptions) *cobra.Command {
	p := keycloak.UserParams{}
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an enabled user whose username is its email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, token, err := adminToken(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			return c.CreateUser(cmd.Context(), token, p)
		},
	}
	cmd.Flags().StringVarP(&p.Email, "email", "e", "", "User email")
	cmd.Flags().StringVar(&p.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&p.LastName, "last-name", "", "Last name (default Student)")
	cmd.Flags().StringVarP(&p.Password, "password", "p", "", "Initial password")
	return cmd
}

func newKeycloakUserIDCommand(g *GlobalOptions) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "user-id",
		Short: "Print the id of the first user matching a search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, token, err := adminToken(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			id, err := c.UserID(cmd.Context(), token, search)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Email or user name")
	return cmd
}

func newKeycloakDeleteUserCommand(g *GlobalOptions) *cobra.Command {
	var (
		email   string
		cleanup bool
	)
	cmd := &cobra.Command{
		Use:   "delete-user",
		Short: "Delete a user by email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, token, err := adminToken(cmd.Context(), g, cleanup)
			if err != nil {
				return err
			}
			if token == "" {
				return nil
			}
			return c.DeleteUser(cmd.Context(), token, email, cleanup)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "User email")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Log failures instead of exiting non-zero")
	return cmd
}
