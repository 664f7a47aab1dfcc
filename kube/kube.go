package kube

import (
	"context"
	"fmt"
	"os"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
	"github.com/field-workshops/labkit/logger"
	"github.com/field-workshops/labkit/system"
	"github.com/field-workshops/labkit/validation"
)

// DefaultNamespace is used when no namespace is given.
const DefaultNamespace = "default"

// SecretKey is the key the secret value is stored under.
const SecretKey = "password"

type serviceRef struct {
	Service   string `json:"service" validate:"required,k8sname"`
	Namespace string `json:"namespace" validate:"required,k8sname"`
}

func newServiceRef(service, namespace string) (serviceRef, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	ref := serviceRef{Service: service, Namespace: namespace}
	return ref, validation.Struct(ref)
}

// NewClientset builds a typed client from a kubeconfig path, or from the
// in-cluster service account when kubeconfig is empty.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster config: %w", err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}
	return cs, nil
}

// WaitForLoadBalancerIP polls src until the service reports an ingress IP.
// Exhausting policy is a fatal *http.AttemptsExhaustedError.
func WaitForLoadBalancerIP(ctx context.Context, log logger.Logger, src IngressSource, service, namespace string, policy http.Policy) (string, error) {
	ref, err := newServiceRef(service, namespace)
	if err != nil {
		return "", err
	}
	if log == nil {
		log = logger.Nop()
	}

	var ip string
	err = http.Poll(ctx, log, policy, "load balancer IP of "+ref.Namespace+"/"+ref.Service,
		func(ctx context.Context, _ int) (bool, error) {
			got, err := src.IngressIP(ctx, ref.Service, ref.Namespace)
			if err != nil {
				return false, err
			}
			ip = got
			return ip != "", nil
		})
	if err != nil {
		return "", err
	}

	log.Info().Str("service", ref.Service).Str("namespace", ref.Namespace).Str("ip", ip).Msg("Found load balancer IP")
	return ip, nil
}

// AddServiceToHosts waits for the service IP and maps hostname to it in hostsPath.
func AddServiceToHosts(ctx context.Context, log logger.Logger, src IngressSource, service, namespace, hostname, hostsPath string, policy http.Policy) (string, error) {
	if hostname == "" {
		return "", http.NewValidationError("hostname cannot be empty", "hostname")
	}
	ip, err := WaitForLoadBalancerIP(ctx, log, src, service, namespace, policy)
	if err != nil {
		return "", err
	}
	if err := system.UpdateHosts(hostsPath, ip, hostname); err != nil {
		return "", err
	}
	if log != nil {
		log.Info().Str("hostname", hostname).Str("ip", ip).Str("hosts_file", hostsPath).Msg("Added host mapping")
	}
	return ip, nil
}

// CreateSecret creates an Opaque secret holding value under SecretKey.
// An existing secret with the same name counts as success.
func CreateSecret(ctx context.Context, log logger.Logger, cs kubernetes.Interface, name, value, namespace string) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if err := validation.Struct(struct {
		Name      string `json:"name" validate:"required,k8sname"`
		Namespace string `json:"namespace" validate:"k8sname"`
	}{name, namespace}); err != nil {
		return err
	}
	if log == nil {
		log = logger.Nop()
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{SecretKey: value},
	}

	_, err := cs.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	switch {
	case err == nil:
		log.Info().Str("secret", name).Str("namespace", namespace).Msg("Secret created")
		return nil
	case apierrors.IsAlreadyExists(err):
		log.Info().Str("secret", name).Str("namespace", namespace).Msg("Secret already exists")
		return nil
	default:
		return fmt.Errorf("failed to create secret %s/%s: %w", namespace, name, err)
	}
}

// ApplyManifests runs "kubectl apply -f" for each path in order and stops at
// the first failure. An empty namespace leaves the namespace to the manifest.
func ApplyManifests(ctx context.Context, runner command.Runner, kubectl string, paths []string, namespace string) error {
	if kubectl == "" {
		kubectl = "kubectl"
	}
	for _, path := range paths {
		args := []string{"apply", "-f", path}
		if namespace != "" {
			args = append(args, "-n", namespace)
		}
		if _, err := runner.Run(ctx, kubectl, args...); err != nil {
			return fmt.Errorf("failed to apply %s: %w", path, err)
		}
	}
	return nil
}

// WaitForAPI polls url until it answers HTTP 200.
func WaitForAPI(ctx context.Context, client http.Client, url string, policy http.Policy) error {
	policy.Success = http.StatusIn(200)
	_, err := client.Execute(ctx, http.Endpoint{URL: url}, nil, policy)
	if err != nil {
		return fmt.Errorf("cluster API at %s not available: %w", url, err)
	}
	return nil
}

var completionLines = []string{
	"source /usr/share/bash-completion/bash_completion",
	"complete -F __start_kubectl k",
}

// EnableShellCompletion appends kubectl completion for the "k" alias to the
// bash profile at path. Lines already present are not repeated.
func EnableShellCompletion(path string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var add strings.Builder
	for _, line := range completionLines {
		if !strings.Contains(string(existing), line) {
			add.WriteString(line)
			add.WriteByte('\n')
		}
	}
	if add.Len() == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if _, err := f.WriteString(add.String()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
