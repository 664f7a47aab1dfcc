package observability

import "errors"

// ErrInvalidProtocol is returned when the metrics protocol is not "http" or "grpc".
var ErrInvalidProtocol = errors.New("observability: protocol must be either 'http' or 'grpc'")

// ErrMissingEndpoint is returned when metrics are enabled without an endpoint.
var ErrMissingEndpoint = errors.New("observability: metrics endpoint is required when metrics are enabled")
