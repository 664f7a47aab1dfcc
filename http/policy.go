package http

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

// Predicate decides whether a response counts as success. A nil error means
// success; a non-nil error is the rejection reason.
type Predicate func(resp *Response) error

// Policy is the retry policy of a single call.
type Policy struct {
	// MaxAttempts is the number of calls made at most. Values below 1 mean 1.
	MaxAttempts int
	// Delay is the constant pause between attempts.
	Delay time.Duration
	// Success is evaluated against every response. Nil means Status2xx.
	Success Predicate
	// NonIdempotent makes transport failures fatal instead of retryable.
	NonIdempotent bool
}

// SingleShot returns a one-attempt policy with the given success predicate.
func SingleShot(success Predicate) Policy {
	return Policy{MaxAttempts: 1, Success: success}
}

// Retrying returns a policy with attempts calls at most, delay apart.
func Retrying(attempts int, delay time.Duration, success Predicate) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay, Success: success}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Success == nil {
		p.Success = Status2xx()
	}
	return p
}

// OutcomeKind is the classification of one attempt.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of classifying one attempt.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Err      error
	Response *Response
}

// Classify turns the raw result of an attempt into an Outcome under policy p.
func Classify(p Policy, resp *Response, err error) Outcome {
	p = p.normalized()

	if err != nil {
		out := Outcome{Kind: OutcomeFatal, Reason: err.Error(), Err: err, Response: resp}
		switch {
		case errors.Is(err, context.Canceled):
			return out
		case IsErrorType(err, NetworkError), IsErrorType(err, TimeoutError):
			if !p.NonIdempotent {
				out.Kind = OutcomeRetryable
			}
			return out
		default:
			return out
		}
	}

	if resp == nil {
		return Outcome{Kind: OutcomeFatal, Reason: "no response", Err: NewValidationError("no response", "response")}
	}

	if rejection := p.Success(resp); rejection != nil {
		return Outcome{
			Kind:     OutcomeRetryable,
			Reason:   rejection.Error(),
			Err:      NewRejectionError(rejection.Error(), resp.StatusCode, resp.Body),
			Response: resp,
		}
	}

	return Outcome{Kind: OutcomeSuccess, Response: resp}
}

// Status2xx accepts any 2xx status code.
func Status2xx() Predicate {
	return func(resp *Response) error {
		if IsSuccessStatus(resp.StatusCode) {
			return nil
		}
		return fmt.Errorf("status %d is not 2xx", resp.StatusCode)
	}
}

// StatusIn accepts exactly the listed status codes.
func StatusIn(codes ...int) Predicate {
	return func(resp *Response) error {
		for _, c := range codes {
			if resp.StatusCode == c {
				return nil
			}
		}
		return fmt.Errorf("status %d not in %v", resp.StatusCode, codes)
	}
}

// StatusRange accepts status codes in [lo, hi].
func StatusRange(lo, hi int) Predicate {
	return func(resp *Response) error {
		if resp.StatusCode >= lo && resp.StatusCode <= hi {
			return nil
		}
		return fmt.Errorf("status %d outside %d-%d", resp.StatusCode, lo, hi)
	}
}

// FieldEquals accepts responses whose JSON field at path equals want.
func FieldEquals(want string, path ...string) Predicate {
	return func(resp *Response) error {
		got, err := resp.Field(path...)
		if err != nil {
			return fmt.Errorf("field %s: %w", joinPath(path), err)
		}
		if got != want {
			return fmt.Errorf("field %s is %q, want %q", joinPath(path), got, want)
		}
		return nil
	}
}

// NonEmptyField accepts responses whose JSON field at path is present and not
// null, "", [] or {}.
func NonEmptyField(path ...string) Predicate {
	return func(resp *Response) error {
		if !resp.JSON {
			return fmt.Errorf("field %s: body is not JSON", joinPath(path))
		}
		value, dataType, _, err := jsonparser.Get(resp.Body, path...)
		if err != nil || dataType == jsonparser.Null {
			return fmt.Errorf("field %s is missing", joinPath(path))
		}
		trimmed := strings.TrimSpace(string(value))
		if trimmed == "" || trimmed == "[]" || trimmed == "{}" {
			return fmt.Errorf("field %s is empty", joinPath(path))
		}
		return nil
	}
}

// MinCount accepts responses whose numeric JSON field at path is at least n.
// A missing field counts as zero.
func MinCount(n int64, path ...string) Predicate {
	return func(resp *Response) error {
		got := resp.IntOr(0, path...)
		if got < n {
			return fmt.Errorf("field %s is %d, want at least %d", joinPath(path), got, n)
		}
		return nil
	}
}

// All accepts a response only when every predicate accepts it.
func All(preds ...Predicate) Predicate {
	return func(resp *Response) error {
		for _, p := range preds {
			if err := p(resp); err != nil {
				return err
			}
		}
		return nil
	}
}

// Field returns the JSON string (or scalar rendered as text) at path.
func (r *Response) Field(path ...string) (string, error) {
	if r == nil || !r.JSON {
		return "", errors.New("body is not JSON")
	}
	value, dataType, _, err := jsonparser.Get(r.Body, path...)
	if err != nil {
		return "", err
	}
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Null:
		return "", nil
	default:
		return string(value), nil
	}
}

// IntOr returns the integer at path, or def when absent or not a number.
func (r *Response) IntOr(def int64, path ...string) int64 {
	if r == nil || !r.JSON {
		return def
	}
	v, err := jsonparser.GetInt(r.Body, path...)
	if err != nil {
		return def
	}
	return v
}

// Each calls fn for every element of the JSON array at path.
func (r *Response) Each(fn func(element []byte) error, path ...string) error {
	if r == nil || !r.JSON {
		return errors.New("body is not JSON")
	}
	var inner error
	_, err := jsonparser.ArrayEach(r.Body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if inner == nil {
			inner = fn(value)
		}
	}, path...)
	if err != nil {
		return err
	}
	return inner
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	return strings.Join(path, ".")
}
