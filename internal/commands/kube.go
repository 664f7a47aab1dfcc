package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/kube"
)

// NewKubeCommand creates the cluster commands.
func NewKubeCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kube",
		Short: "Discover service addresses and apply resources to the lab cluster",
	}
	cmd.AddCommand(
		newWaitLBCommand(g),
		newAddHostCommand(g),
		newCreateSecretCommand(g),
		newApplyCommand(g),
		newWaitAPICommand(g),
		newCompletionCommand(),
	)
	return cmd
}

// ServiceOptions selects a service and how its address is read.
type ServiceOptions struct {
	Service   string
	Namespace string
	// UseClient reads the service through the API instead of kubectl
	UseClient bool
}

func (o *ServiceOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Service, "service", "s", "", "Service name")
	cmd.Flags().StringVarP(&o.Namespace, "namespace", "n", "", "Namespace (default from config)")
	cmd.Flags().BoolVar(&o.UseClient, "api", false, "Read the service through the cluster API instead of kubectl")
	_ = cmd.MarkFlagRequired("service")
}

// source returns the ingress source and the retry budget that goes with it.
func (o *ServiceOptions) source(s *session) (kube.IngressSource, config.PolicyConfig, error) {
	if o.Namespace == "" {
		o.Namespace = s.cfg.Kube.Namespace
	}
	if !o.UseClient {
		return kube.NewKubectlSource(s.runner, s.cfg.Kube.Kubectl), s.cfg.Retry.LoadBalancerCLI, nil
	}
	cs, err := kube.NewClientset(s.cfg.Kube.Kubeconfig)
	if err != nil {
		return nil, config.PolicyConfig{}, err
	}
	return kube.NewClientSource(cs), s.cfg.Retry.LoadBalancer, nil
}

func newWaitLBCommand(g *GlobalOptions) *cobra.Command {
	opts := &ServiceOptions{}
	cmd := &cobra.Command{
		Use:   "wait-lb",
		Short: "Wait for a service load balancer IP and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			src, budget, err := opts.source(s)
			if err != nil {
				return err
			}
			ip, err := kube.WaitForLoadBalancerIP(cmd.Context(), s.log, src, opts.Service, opts.Namespace, budget.Policy(nil))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ip)
			return nil
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func newAddHostCommand(g *GlobalOptions) *cobra.Command {
	opts := &ServiceOptions{}
	var hostname string
	cmd := &cobra.Command{
		Use:   "add-host",
		Short: "Map a hostname to a service load balancer IP in the hosts file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			src, _, err := opts.source(s)
			if err != nil {
				return err
			}
			ip, err := kube.AddServiceToHosts(cmd.Context(), s.log, src, opts.Service, opts.Namespace,
				hostname, s.cfg.Kube.HostsFile, s.cfg.Retry.Hosts.Policy(nil))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ip, hostname)
			return nil
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&hostname, "hostname", "", "Host name to map")
	_ = cmd.MarkFlagRequired("hostname")
	return cmd
}

// SecretOptions selects where create-secret reads the value from.
type SecretOptions struct {
	Value     string
	ValueEnv  string
	FromStdin bool
}

// resolve returns the secret value from exactly one source. Stdin input has its
// trailing line break removed.
func (o SecretOptions) resolve(in io.Reader) (string, error) {
	sources := 0
	for _, set := range []bool{o.Value != "", o.ValueEnv != "", o.FromStdin} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return "", errors.New("exactly one of --value, --value-env or --value-stdin is required")
	}

	switch {
	case o.ValueEnv != "":
		v, ok := os.LookupEnv(o.ValueEnv)
		if !ok || v == "" {
			return "", fmt.Errorf("environment variable %s is not set", o.ValueEnv)
		}
		return v, nil
	case o.FromStdin:
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		v := strings.TrimRight(string(data), "\r\n")
		if v == "" {
			return "", errors.New("empty secret on stdin")
		}
		return v, nil
	default:
		return o.Value, nil
	}
}

func newCreateSecretCommand(g *GlobalOptions) *cobra.Command {
	var (
		name, namespace string
		opts            SecretOptions
	)
	cmd := &cobra.Command{
		Use:   "create-secret",
		Short: "Create an opaque secret holding one password value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := opts.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			cs, err := kube.NewClientset(s.cfg.Kube.Kubeconfig)
			if err != nil {
				return err
			}
			if namespace == "" {
				namespace = s.cfg.Kube.Namespace
			}
			return kube.CreateSecret(cmd.Context(), s.log, cs, name, value, namespace)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Secret name")
	cmd.Flags().StringVar(&opts.Value, "value", "", "Secret value (visible in the process list, prefer --value-env or --value-stdin)")
	cmd.Flags().StringVar(&opts.ValueEnv, "value-env", "", "Read the secret value from this environment variable")
	cmd.Flags().BoolVar(&opts.FromStdin, "value-stdin", false, "Read the secret value from stdin")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace (default from config)")
	return cmd
}

func newApplyCommand(g *GlobalOptions) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "apply FILE...",
		Short: "Apply manifests in order with kubectl",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			return kube.ApplyManifests(cmd.Context(), s.runner, s.cfg.Kube.Kubectl, args, namespace)
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace (default from the manifests)")
	return cmd
}

func newWaitAPICommand(g *GlobalOptions) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "wait-api",
		Short: "Wait until the cluster API answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			if url == "" {
				url = s.cfg.Kube.APIURL
			}
			return kube.WaitForAPI(cmd.Context(), s.client(), url, s.cfg.Retry.API.Policy(nil))
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "API URL (default from config)")
	return cmd
}

func newCompletionCommand() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Enable kubectl completion for the k alias",
		RunE: func(_ *cobra.Command, _ []string) error {
			if profile == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return http.NewValidationError("no home directory; pass --profile", "profile")
				}
				profile = filepath.Join(home, ".bashrc")
			}
			return kube.EnableShellCompletion(profile)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Shell profile (default ~/.bashrc)")
	return cmd
}
