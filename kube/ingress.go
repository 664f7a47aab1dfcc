// Package kube discovers load-balancer addresses and applies resources to the
// lab cluster, either through kubectl or the typed client.
package kube

import (
	"context"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/command"
)

const ingressJSONPath = "jsonpath={.status.loadBalancer.ingress[0].ip}"

// IngressSource reads the first load-balancer ingress IP of a service.
// An empty IP with a nil error means the address is not assigned yet.
type IngressSource interface {
	IngressIP(ctx context.Context, service, namespace string) (string, error)
}

// KubectlSource queries the service through the kubectl binary.
type KubectlSource struct {
	Runner  command.Runner
	Kubectl string
}

// NewKubectlSource creates a KubectlSource. An empty kubectl means "kubectl".
func NewKubectlSource(runner command.Runner, kubectl string) *KubectlSource {
	if kubectl == "" {
		kubectl = "kubectl"
	}
	return &KubectlSource{Runner: runner, Kubectl: kubectl}
}

// IngressIP implements IngressSource. The outputs "<none>" and "none" mean no IP.
func (s *KubectlSource) IngressIP(ctx context.Context, service, namespace string) (string, error) {
	res, err := s.Runner.Run(ctx, s.Kubectl, "get", "service", service, "-n", namespace, "-o="+ingressJSONPath)
	if err != nil {
		return "", fmt.Errorf("kubectl get service %s: %w", service, err)
	}
	return normalizeIP(res.Output()), nil
}

func normalizeIP(out string) string {
	ip := strings.Trim(strings.TrimSpace(out), `'"`)
	switch strings.ToLower(ip) {
	case "<none>", "none":
		return ""
	}
	return ip
}

// ClientSource reads the service through the typed client.
type ClientSource struct {
	Clientset kubernetes.Interface
}

// NewClientSource creates a ClientSource.
func NewClientSource(cs kubernetes.Interface) *ClientSource {
	return &ClientSource{Clientset: cs}
}

// IngressIP implements IngressSource. Authorization failures stop polling.
func (s *ClientSource) IngressIP(ctx context.Context, service, namespace string) (string, error) {
	svc, err := s.Clientset.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err) {
			return "", http.Stop(fmt.Errorf("get service %s/%s: %w", namespace, service, err))
		}
		return "", fmt.Errorf("get service %s/%s: %w", namespace, service, err)
	}
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		if ing.IP != "" {
			return ing.IP, nil
		}
	}
	return "", nil
}
