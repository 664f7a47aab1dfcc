package chaos

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/buger/jsonparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/testutil"
	"github.com/field-workshops/labkit/logger"
)

const (
	testGraphQLPath = "/gateway/chaos/manager/api/query"
	infraManifest   = "apiVersion: v1\nkind: ServiceAccount\nmetadata:\n  name: hce\n  namespace: hce\n"
)

type graphQLServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies [][]byte
}

func (s *graphQLServer) calls() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.bodies...)
}

// newGraphQLServer records every request body and answers with respond.
func newGraphQLServer(t *testing.T, respond func(t *testing.T, body []byte) string) *graphQLServer {
	t.Helper()
	s := &graphQLServer{}
	s.Server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, testGraphQLPath, r.URL.Path)
		assert.Equal(t, testutil.TestAPIKey, r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(t, body)))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		HTTP: config.HTTPConfig{Timeout: 5 * time.Second},
		Platform: config.PlatformConfig{
			BaseURL:   baseURL,
			APIKey:    testutil.TestAPIKey,
			AccountID: testutil.TestAccountID,
			OrgID:     testutil.TestOrgID,
			ProjectID: testutil.TestProjectID,
		},
		Chaos: config.ChaosConfig{Path: testGraphQLPath, ManifestDir: t.TempDir()},
		Lab:   config.LabConfig{WorkDir: t.TempDir()},
	}
	c, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	return c
}

func queryOf(t *testing.T, body []byte) string {
	t.Helper()
	q, err := jsonparser.GetString(body, "query")
	require.NoError(t, err)
	return q
}

func TestParseRequestKind(t *testing.T) {
	for _, kind := range []RequestKind{RegisterInfra, AddProbe, ListInfra, GetInfraManifest} {
		parsed, err := ParseRequestKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	kind, err := ParseRequestKind("delete_everything")
	require.Error(t, err)
	assert.Equal(t, UnknownKind, kind)
	assert.True(t, http.IsErrorType(err, http.ValidationError))
	assert.Equal(t, "unknown", UnknownKind.String())
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		kind RequestKind
		want string
	}{
		{
			kind: RegisterInfra,
			want: "mutation registerInfra($request: RegisterInfraRequest!, $identifiers: IdentifiersRequest!) { registerInfra(request: $request, identifiers: $identifiers) { manifest } }",
		},
		{
			kind: AddProbe,
			want: "mutation addProbe($request: ProbeRequest!, $identifiers: IdentifiersRequest!) { addProbe(request: $request, identifiers: $identifiers) { name type } }",
		},
		{
			kind: GetInfraManifest,
			want: "query getInfraManifest($infraID: String!, $identifiers: IdentifiersRequest!) { getInfraManifest(infraID: $infraID, identifiers: $identifiers) }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := BuildQuery(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	list, err := BuildQuery(ListInfra)
	require.NoError(t, err)
	assert.Contains(t, list, "query listInfrasV2($request: ListInfraRequest, $identifiers: IdentifiersRequest!)")
	assert.Contains(t, list, "infras {infraID name")

	_, err = BuildQuery(RequestKind(42))
	assert.True(t, http.IsErrorType(err, http.ValidationError))
}

func TestCallUnknownKindMakesNoRequest(t *testing.T) {
	server := newGraphQLServer(t, func(*testing.T, []byte) string { return `{"data":{}}` })
	c := newTestClient(t, server.URL)

	_, err := c.Call(context.Background(), RequestKind(99), map[string]any{"x": 1})
	require.Error(t, err)
	assert.True(t, http.IsErrorType(err, http.ValidationError))
	assert.Empty(t, server.calls())
}

func TestCallSendsIdentifiers(t *testing.T) {
	server := newGraphQLServer(t, func(*testing.T, []byte) string {
		return `{"data":{"getInfraManifest":"kind: List\n"}}`
	})
	c := newTestClient(t, server.URL)

	resp, err := c.Call(context.Background(), GetInfraManifest, "infra-1")
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	bodies := server.calls()
	require.Len(t, bodies, 1)
	var sent struct {
		Variables struct {
			InfraID     string      `json:"infraID"`
			Identifiers Identifiers `json:"identifiers"`
		} `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(bodies[0], &sent))
	assert.Equal(t, "infra-1", sent.Variables.InfraID)
	assert.Equal(t, Identifiers{
		AccountIdentifier: testutil.TestAccountID,
		OrgIdentifier:     testutil.TestOrgID,
		ProjectIdentifier: testutil.TestProjectID,
	}, sent.Variables.Identifiers)
}

func TestCallGraphQLErrorsAreFatal(t *testing.T) {
	server := newGraphQLServer(t, func(*testing.T, []byte) string {
		return `{"data":null,"errors":[{"message":"infra already exists"},{"message":"second"}]}`
	})
	c := newTestClient(t, server.URL)

	_, err := c.Call(context.Background(), RegisterInfra, map[string]any{"name": "lab"})
	require.Error(t, err)

	var gqlErr *GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, []string{"infra already exists", "second"}, gqlErr.Messages)
	assert.Contains(t, err.Error(), "register_infra")
	assert.Len(t, server.calls(), 1)
}

func TestCallErrorsKeyAlwaysFails(t *testing.T) {
	for name, body := range map[string]string{
		"empty list": `{"data":{"listInfras":[]},"errors":[]}`,
		"null":       `{"data":{"listInfras":[]},"errors":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := newGraphQLServer(t, func(*testing.T, []byte) string { return body })
			c := newTestClient(t, server.URL)

			_, err := c.Call(context.Background(), ListInfra, nil)
			var gqlErr *GraphQLError
			require.ErrorAs(t, err, &gqlErr)
			assert.Equal(t, ListInfra, gqlErr.Kind)
		})
	}
}

func TestCallHTTPFailure(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusBadGateway)
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)

	_, err := c.Call(context.Background(), ListInfra, nil)
	require.Error(t, err)
	assert.True(t, http.IsRejectedWithStatus(err, nethttp.StatusBadGateway))
}

func TestRegisterInfra(t *testing.T) {
	server := newGraphQLServer(t, func(t *testing.T, body []byte) string {
		assert.Contains(t, queryOf(t, body), "registerInfra")
		var sent struct {
			Variables struct {
				Request map[string]any `json:"request"`
			} `json:"variables"`
		}
		require.NoError(t, json.Unmarshal(body, &sent))
		assert.Equal(t, map[string]any{
			"name":                 "lab-infra",
			"environmentID":        "lab_env",
			"platformName":         "Kubernetes",
			"infraNamespace":       "chaos",
			"serviceAccount":       "hce",
			"infraScope":           "namespace",
			"infraNsExists":        true,
			"installationType":     "MANIFEST",
			"isAutoUpgradeEnabled": false,
		}, sent.Variables.Request)

		manifestJSON, _ := json.Marshal(infraManifest)
		return `{"data":{"registerInfra":{"manifest":` + string(manifestJSON) + `}}}`
	})
	c := newTestClient(t, server.URL)

	path, err := c.RegisterInfra(context.Background(), InfraParams{
		Name:           "lab-infra",
		EnvironmentID:  "lab_env",
		InfraNamespace: "chaos",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.manifestDir, "lab-infra_manifest.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, infraManifest, string(data))
}

func TestRegisterInfraValidation(t *testing.T) {
	server := newGraphQLServer(t, func(*testing.T, []byte) string { return `{}` })
	c := newTestClient(t, server.URL)

	_, err := c.RegisterInfra(context.Background(), InfraParams{Name: "lab-infra"})
	assert.True(t, http.IsErrorType(err, http.ValidationError))

	_, err = c.RegisterInfra(context.Background(), InfraParams{Name: "x", EnvironmentID: "e", InfraScope: "galaxy"})
	assert.True(t, http.IsErrorType(err, http.ValidationError))
	assert.Empty(t, server.calls())
}

func TestAddProbe(t *testing.T) {
	server := newGraphQLServer(t, func(t *testing.T, body []byte) string {
		var sent struct {
			Variables struct {
				Request probeRequest `json:"request"`
			} `json:"variables"`
		}
		require.NoError(t, json.Unmarshal(body, &sent))
		req := sent.Variables.Request
		assert.Equal(t, "frontend_health", req.ProbeID)
		assert.Equal(t, "httpProbe", req.Type)
		assert.Equal(t, "Kubernetes", req.InfrastructureType)
		assert.Equal(t, httpProbeProperties{
			ProbeTimeout:         "10s",
			Interval:             "5s",
			Retry:                3,
			Attempt:              3,
			ProbePollingInterval: "1s",
			InitialDelay:         "2s",
			URL:                  "http://frontend.lab.svc:8080/health",
			Method:               map[string]probeCheck{"get": {Criteria: "==", ResponseCode: "200"}},
		}, req.Properties)
		return `{"data":{"addProbe":{"name":"frontend health","type":"httpProbe"}}}`
	})
	c := newTestClient(t, server.URL)

	probe, err := c.AddProbe(context.Background(), ProbeParams{
		Name: "frontend health",
		URL:  "http://frontend.lab.svc:8080/health",
	})
	require.NoError(t, err)
	assert.Equal(t, Probe{Name: "frontend health", Type: "httpProbe"}, probe)
}

func TestAddProbeKeepsExplicitZeroRetry(t *testing.T) {
	server := newGraphQLServer(t, func(t *testing.T, body []byte) string {
		retry, err := jsonparser.GetInt(body, "variables", "request", "kubernetesHTTPProperties", "retry")
		require.NoError(t, err)
		attempt, err := jsonparser.GetInt(body, "variables", "request", "kubernetesHTTPProperties", "attempt")
		require.NoError(t, err)
		assert.Equal(t, int64(0), retry)
		assert.Equal(t, int64(3), attempt)
		return `{"data":{"addProbe":{"name":"once","type":"httpProbe"}}}`
	})
	c := newTestClient(t, server.URL)

	zero := 0
	_, err := c.AddProbe(context.Background(), ProbeParams{Name: "once", Retry: &zero})
	require.NoError(t, err)
	assert.Len(t, server.calls(), 1)

	negative := -1
	_, err = c.AddProbe(context.Background(), ProbeParams{Name: "bad", Retry: &negative})
	assert.True(t, http.IsErrorType(err, http.ValidationError))
	assert.Len(t, server.calls(), 1)
}

func TestGenerateID(t *testing.T) {
	assert.Equal(t, "cart_service_probe", GenerateID("cart service-probe"))
	assert.Equal(t, "latency_check", GenerateID("latency check"))
	assert.Equal(t, "", GenerateID(""))
}

func TestManifestForInfra(t *testing.T) {
	server := newGraphQLServer(t, func(t *testing.T, body []byte) string {
		switch query := queryOf(t, body); {
		case strings.HasPrefix(query, "query getInfraManifest"):
			id, _ := jsonparser.GetString(body, "variables", "infraID")
			assert.Equal(t, "id-2", id)
			manifestJSON, _ := json.Marshal(infraManifest)
			return `{"data":{"getInfraManifest":` + string(manifestJSON) + `}}`
		default:
			return `{"data":{"listInfrasV2":{"totalNoOfInfras":2,"infras":[
				{"infraID":"id-1","name":"other"},
				{"infraID":"id-2","name":"lab-infra","infraNamespace":"hce"}
			]}}}`
		}
	})
	c := newTestClient(t, server.URL)

	infras, err := c.ListInfras(context.Background())
	require.NoError(t, err)
	require.Len(t, infras, 2)
	assert.Equal(t, "hce", infras[1].InfraNamespace)

	dir := t.TempDir()
	path, err := c.ManifestForInfra(context.Background(), "lab-infra", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lab-infra-harness-chaos-enable.yml"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, infraManifest, string(data))

	_, err = c.ManifestForInfra(context.Background(), "missing", dir)
	assert.ErrorIs(t, err, ErrInfraNotFound)
	assert.Len(t, server.calls(), 4)
}
