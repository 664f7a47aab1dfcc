package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"

	"github.com/field-workshops/labkit/logger"
	"github.com/field-workshops/labkit/trace"
)

const (
	// DefaultTimeout is the default request timeout duration
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retries for the single-shot REST surface
	DefaultMaxRetries = 0

	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = 1 * time.Second

	defaultMaxPayloadLogBytes = 4096

	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"
	contentTypeForm   = "application/x-www-form-urlencoded"
	contentTypeYAML   = "application/yaml"
)

// client implements the Client interface
type client struct {
	httpClient          *nethttp.Client
	logger              logger.Logger
	config              *Config
	requestInterceptors []RequestInterceptor
	metrics             *clientMetrics
	filter              *logger.SensitiveDataFilter
	callCount           int64
}

func defaultConfig() *Config {
	return &Config{
		Timeout:             DefaultTimeout,
		MaxRetries:          DefaultMaxRetries,
		RetryDelay:          DefaultRetryDelay,
		RequestInterceptors: []RequestInterceptor{},
		DefaultHeaders:      make(map[string]string),
		MaxPayloadLogBytes:  defaultMaxPayloadLogBytes,
	}
}

// NewClient creates a new client with default configuration
func NewClient(log logger.Logger) Client {
	return NewBuilder(log).Build()
}

// Builder provides a fluent interface for configuring the client
type Builder struct {
	config     *Config
	logger     logger.Logger
	httpClient *nethttp.Client
	transport  nethttp.RoundTripper
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{config: defaultConfig(), logger: log}
}

// WithBaseURL sets the URL that Endpoint paths are resolved against
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = strings.TrimRight(baseURL, "/")
	return b
}

// WithTimeout sets the per-request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetries sets the retry configuration used by Get/Post/Put/Patch/Delete/Do
func (b *Builder) WithRetries(maxRetries int, retryDelay time.Duration) *Builder {
	b.config.MaxRetries = maxRetries
	b.config.RetryDelay = retryDelay
	return b
}

// WithDefaultHeader adds a header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithPayloadLogging enables debug logging of bodies, truncated to maxBytes
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithMeterProvider sets the OpenTelemetry meter provider used for client metrics
func (b *Builder) WithMeterProvider(mp metric.MeterProvider) *Builder {
	b.config.MeterProvider = mp
	return b
}

// WithHTTPClient uses a caller-supplied *http.Client. A zero Timeout is replaced by the builder timeout.
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTransport sets the RoundTripper of the underlying http.Client
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// Build creates the client with the configured options
func (b *Builder) Build() Client {
	hc := b.httpClient
	if hc == nil {
		hc = &nethttp.Client{}
	}
	if hc.Timeout == 0 {
		hc.Timeout = b.config.Timeout
	}
	if b.transport != nil {
		hc.Transport = b.transport
	}

	log := b.logger
	if log == nil {
		log = logger.Nop()
	}

	return &client{
		httpClient:          hc,
		logger:              log,
		config:              b.config,
		requestInterceptors: b.config.RequestInterceptors,
		metrics:             newClientMetrics(b.config.MeterProvider),
		filter:              logger.NewSensitiveDataFilter(nil),
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do performs a plain request with the client's default policy: 2xx is
// success, MaxRetries+1 attempts, RetryDelay apart.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewValidationError("request cannot be nil", "request")
	}
	if req.URL == "" {
		return nil, NewValidationError("URL cannot be empty", "url")
	}

	ep := Endpoint{Method: method, URL: req.URL, Headers: req.Headers, Encoding: EncodingNone}
	var body any
	if req.Body != nil {
		ep.Encoding = EncodingRaw
		body = req.Body
	}

	return c.Execute(ctx, ep, body, Policy{
		MaxAttempts: c.config.MaxRetries + 1,
		Delay:       c.config.RetryDelay,
		Success:     Status2xx(),
	})
}

// Execute serializes body per ep.Encoding, sends it and retries per policy.
// On success the accepted response is returned. On failure the last response
// (if any) is returned together with the error.
func (c *client) Execute(ctx context.Context, ep Endpoint, body any, policy Policy) (*Response, error) {
	policy = policy.normalized()

	target, err := c.resolveURL(ep)
	if err != nil {
		return nil, err
	}
	if ep.Method == "" {
		ep.Method = nethttp.MethodGet
	}
	payload, contentType, err := encodeBody(ep.Encoding, body)
	if err != nil {
		return nil, err
	}

	var (
		last    Outcome
		attempt int
	)

	operation := func() error {
		attempt++
		start := time.Now()
		resp, sendErr := c.send(ctx, ep, target, payload, contentType, attempt)
		last = Classify(policy, resp, sendErr)
		c.metrics.recordAttempt(ctx, ep.Method, last, time.Since(start))

		switch last.Kind {
		case OutcomeSuccess:
			return nil
		case OutcomeRetryable:
			return last.Err
		default:
			return backoff.Permanent(last.Err)
		}
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Str("method", ep.Method).
			Str("url", target).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("retry_in", wait).
			Err(err).
			Msg("Attempt failed, retrying")
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(policy.MaxAttempts-1)),
		ctx,
	)

	err = backoff.RetryNotify(operation, strategy, notify)
	if err == nil {
		return last.Response, nil
	}

	if last.Kind == OutcomeRetryable {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return last.Response, fmt.Errorf("%s %s cancelled after %d attempt(s): %w", ep.Method, target, attempt, ctxErr)
		}
		err = &AttemptsExhaustedError{Attempts: attempt, Last: last.Err, Response: last.Response}
	}

	logEvent := c.logger.Error().
		Str("method", ep.Method).
		Str("url", target).
		Int("attempts", attempt).
		Err(err)
	if last.Response != nil {
		logEvent = logEvent.Int("status", last.Response.StatusCode)
		if c.config.LogPayloads {
			logEvent = logEvent.Bytes("body", c.payload(last.Response.Body))
		}
	}
	logEvent.Msg("Request failed")

	return last.Response, err
}

// resolveURL joins base URL, path and query into the final target
func (c *client) resolveURL(ep Endpoint) (string, error) {
	raw := ep.URL
	if raw == "" {
		if c.config.BaseURL == "" {
			return "", NewValidationError("endpoint has no URL and client has no base URL", "url")
		}
		raw = c.config.BaseURL + "/" + strings.TrimLeft(ep.Path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", NewValidationError(fmt.Sprintf("invalid URL %q", raw), "url")
	}

	if len(ep.Query) > 0 {
		q := u.Query()
		for key, values := range ep.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody serializes body according to the declared encoding
func encodeBody(enc Encoding, body any) ([]byte, string, error) {
	switch enc {
	case EncodingNone:
		if body != nil {
			return nil, "", NewValidationError("body given for an endpoint without encoding", "body")
		}
		return nil, "", nil

	case EncodingJSON:
		switch v := body.(type) {
		case nil:
			return nil, contentTypeJSON, nil
		case []byte:
			return v, contentTypeJSON, nil
		case json.RawMessage:
			return v, contentTypeJSON, nil
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, "", NewValidationError(fmt.Sprintf("cannot marshal JSON body: %v", err), "body")
			}
			return data, contentTypeJSON, nil
		}

	case EncodingForm:
		switch v := body.(type) {
		case url.Values:
			return []byte(v.Encode()), contentTypeForm, nil
		case map[string]string:
			values := url.Values{}
			for key, value := range v {
				values.Set(key, value)
			}
			return []byte(values.Encode()), contentTypeForm, nil
		default:
			return nil, "", NewValidationError(fmt.Sprintf("form body must be url.Values or map[string]string, got %T", body), "body")
		}

	case EncodingYAML, EncodingRaw:
		ct := ""
		if enc == EncodingYAML {
			ct = contentTypeYAML
		}
		switch v := body.(type) {
		case string:
			return []byte(v), ct, nil
		case []byte:
			return v, ct, nil
		default:
			return nil, "", NewValidationError(fmt.Sprintf("%s body must be string or []byte, got %T", enc, body), "body")
		}

	default:
		return nil, "", NewValidationError(fmt.Sprintf("unknown encoding %d", int(enc)), "encoding")
	}
}

// send performs exactly one attempt
func (c *client) send(ctx context.Context, ep Endpoint, target string, payload []byte, contentType string, attempt int) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, ep.Method, target, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to create HTTP request: %v", err), "request")
	}

	c.applyHeaders(ctx, httpReq, ep.Headers, contentType)

	if err := c.runRequestInterceptors(ctx, httpReq); err != nil {
		return nil, NewInterceptorError("request interceptor failed", err)
	}

	c.logRequest(httpReq, payload, attempt)

	callCount := atomic.AddInt64(&c.callCount, 1)
	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		if c.isTimeout(err) {
			return nil, NewTimeoutError(fmt.Sprintf("%s %s", ep.Method, target), c.httpClient.Timeout)
		}
		return nil, NewNetworkError("request execution failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
		JSON:       isJSON(httpResp.Header.Get(contentTypeHeader), respBody),
		Stats: Stats{
			ElapsedTime: time.Since(start),
			CallCount:   callCount,
			Attempt:     attempt,
		},
	}
	c.logResponse(resp)
	return resp, nil
}

// isJSON reports whether the content type indicates JSON and the body parses
func isJSON(contentType string, body []byte) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mediaType != contentTypeJSON && !strings.HasSuffix(mediaType, "+json") {
		return false
	}
	return len(body) > 0 && json.Valid(body)
}

// applyHeaders applies default, endpoint and tracing headers
func (c *client) applyHeaders(ctx context.Context, httpReq *nethttp.Request, headers map[string]string, contentType string) {
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set(contentTypeHeader, contentType)
	}
	// Endpoint headers override defaults and the encoding's content type
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	if httpReq.Header.Get(trace.HeaderXRequestID) == "" {
		httpReq.Header.Set(trace.HeaderXRequestID, trace.NewRequestID())
	}
	if runID, ok := trace.RunIDFromContext(ctx); ok {
		httpReq.Header.Set(trace.HeaderXRunID, runID)
	}
}

func (c *client) isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// runRequestInterceptors executes all request interceptors
func (c *client) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range c.requestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// payload masks credentials, then truncates
func (c *client) payload(body []byte) []byte {
	return c.truncate(c.filter.FilterPayload(body))
}

func (c *client) truncate(body []byte) []byte {
	limit := c.config.MaxPayloadLogBytes
	if limit <= 0 || len(body) <= limit {
		return body
	}
	return body[:limit]
}

// logRequest logs the outgoing request
func (c *client) logRequest(req *nethttp.Request, payload []byte, attempt int) {
	c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("attempt", attempt).
		Msg("REST client request")

	if c.config.LogPayloads {
		logEvent := c.logger.Debug().Interface("headers", map[string][]string(req.Header))
		if len(payload) > 0 {
			logEvent = logEvent.Bytes("body", c.payload(payload))
		}
		logEvent.Msg("REST client request payload")
	}
}

// logResponse logs the incoming response
func (c *client) logResponse(resp *Response) {
	c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Msg("REST client response")

	if c.config.LogPayloads && len(resp.Body) > 0 {
		c.logger.Debug().Bytes("body", c.payload(resp.Body)).Msg("REST client response payload")
	}
}
