package http

import (
	"context"
	nethttp "net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Client defines the REST client interface for making HTTP requests
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)

	// Execute performs the call described by ep, retrying according to policy.
	Execute(ctx context.Context, ep Endpoint, body any, policy Policy) (*Response, error)
}

// Encoding declares how an Endpoint body is serialized.
type Encoding int

const (
	// EncodingNone sends no body.
	EncodingNone Encoding = iota
	// EncodingJSON marshals the body with encoding/json. []byte bodies are sent verbatim.
	EncodingJSON
	// EncodingForm sends url.Values or map[string]string as application/x-www-form-urlencoded.
	EncodingForm
	// EncodingYAML sends a string or []byte YAML document as application/yaml.
	EncodingYAML
	// EncodingRaw sends a string or []byte without setting a content type.
	EncodingRaw
)

func (e Encoding) String() string {
	switch e {
	case EncodingNone:
		return "none"
	case EncodingJSON:
		return "json"
	case EncodingForm:
		return "form"
	case EncodingYAML:
		return "yaml"
	case EncodingRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Endpoint describes one remote call. It is immutable for the duration of a call.
type Endpoint struct {
	Method string
	// URL is an absolute URL. When empty the client's base URL is joined with Path.
	URL      string
	Path     string
	Query    url.Values
	Headers  map[string]string
	Encoding Encoding
}

// Request represents a plain HTTP request for the single-shot REST surface
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	// JSON is true when the content type announced JSON and the body parsed as JSON.
	JSON  bool
	Stats Stats
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
	Attempt     int
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// Config holds the REST client configuration
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	RequestInterceptors []RequestInterceptor
	DefaultHeaders      map[string]string
	// LogPayloads enables debug-level logging of request and response bodies
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	MeterProvider      metric.MeterProvider
}
