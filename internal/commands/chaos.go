package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/chaos"
	"github.com/field-workshops/labkit/http"
)

// NewChaosCommand creates the chaos engineering commands.
func NewChaosCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Register chaos infrastructure and probes",
	}
	cmd.AddCommand(
		newRegisterInfraCommand(g),
		newAddProbeCommand(g),
		newListInfrasCommand(g),
		newInfraManifestCommand(g),
		newChaosCallCommand(g),
	)
	return cmd
}

func openChaos(g *GlobalOptions) (*chaos.Client, error) {
	s, err := g.open()
	if err != nil {
		return nil, err
	}
	return chaos.New(s.cfg, s.log)
}

func newRegisterInfraCommand(g *GlobalOptions) *cobra.Command {
	var (
		p        chaos.InfraParams
		nsExists bool
	)
	cmd := &cobra.Command{
		Use:   "register-infra",
		Short: "Register chaos infrastructure and save its install manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("namespace-exists") {
				p.InfraNsExists = &nsExists
			}
			c, err := openChaos(g)
			if err != nil {
				return err
			}
			path, err := c.RegisterInfra(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&p.Name, "name", "n", "", "Infrastructure name")
	cmd.Flags().StringVarP(&p.EnvironmentID, "environment", "e", "", "Environment identifier")
	cmd.Flags().StringVar(&p.InfraNamespace, "namespace", "", "Namespace the infrastructure runs in (default hce)")
	cmd.Flags().StringVar(&p.ServiceAccount, "service-account", "", "Service account (default hce)")
	cmd.Flags().StringVar(&p.InfraScope, "scope", "", "namespace or cluster (default namespace)")
	cmd.Flags().BoolVar(&nsExists, "namespace-exists", true, "Whether the namespace already exists")
	cmd.Flags().BoolVar(&p.IsAutoUpgradeEnabled, "auto-upgrade", false, "Enable automatic upgrades")
	cmd.Flags().StringVar(&p.Description, "description", "", "Infrastructure description")
	return cmd
}

func newAddProbeCommand(g *GlobalOptions) *cobra.Command {
	var (
		p              chaos.ProbeParams
		retry, attempt int
	)
	cmd := &cobra.Command{
		Use:   "add-probe",
		Short: "Create an HTTP probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("retry") {
				p.Retry = &retry
			}
			if cmd.Flags().Changed("attempt") {
				p.Attempt = &attempt
			}
			c, err := openChaos(g)
			if err != nil {
				return err
			}
			probe, err := c.AddProbe(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", probe.Name, probe.Type)
			return nil
		},
	}
	cmd.Flags().StringVarP(&p.Name, "name", "n", "", "Probe name")
	cmd.Flags().StringVarP(&p.URL, "url", "u", "", "URL to probe (default http://example.com)")
	cmd.Flags().StringVar(&p.Timeout, "timeout", "", "Probe timeout (default 10s)")
	cmd.Flags().StringVar(&p.Interval, "interval", "", "Probe interval (default 5s)")
	cmd.Flags().IntVar(&retry, "retry", 3, "Retries")
	cmd.Flags().IntVar(&attempt, "attempt", 3, "Attempts")
	cmd.Flags().StringVar(&p.ResponseCode, "response-code", "", "Expected response code (default 200)")
	cmd.Flags().BoolVar(&p.StopOnFailure, "stop-on-failure", false, "Stop the experiment when the probe fails")
	return cmd
}

func newListInfrasCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-infras",
		Short: "List registered chaos infrastructures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openChaos(g)
			if err != nil {
				return err
			}
			infras, err := c.ListInfras(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tNAMESPACE\tSCOPE")
			for _, infra := range infras {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", infra.InfraID, infra.Name, infra.InfraNamespace, infra.InfraScope)
			}
			return w.Flush()
		},
	}
}

func newInfraManifestCommand(g *GlobalOptions) *cobra.Command {
	var name, dir string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Save the manifest of a registered infrastructure",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openChaos(g)
			if err != nil {
				return err
			}
			path, err := c.ManifestForInfra(cmd.Context(), name, dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Infrastructure name")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (default lab work dir)")
	return cmd
}

func newChaosCallCommand(g *GlobalOptions) *cobra.Command {
	var variables string
	cmd := &cobra.Command{
		Use:   "call KIND",
		Short: "Send one GraphQL request and print the response",
		Long:  "Send one GraphQL request. KIND is a request tag such as register_infra or get_infra_manifest.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := chaos.ParseRequestKind(args[0])
			if err != nil {
				return err
			}
			var vars any
			if variables != "" {
				if !json.Valid([]byte(variables)) {
					return http.NewValidationError("variables must be a JSON document", "variables")
				}
				vars = json.RawMessage(variables)
			}
			c, err := openChaos(g)
			if err != nil {
				return err
			}
			resp, err := c.Call(cmd.Context(), kind, vars)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
			return nil
		},
	}
	cmd.Flags().StringVar(&variables, "variables", "", "JSON value bound to the request parameter")
	return cmd
}
