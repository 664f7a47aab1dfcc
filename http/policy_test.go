package http

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(status int, body string) *Response {
	return &Response{StatusCode: status, Body: []byte(body), JSON: isJSON(contentTypeJSON, []byte(body))}
}

func TestPolicyNormalized(t *testing.T) {
	p := Policy{MaxAttempts: 0, Delay: -1}.normalized()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Zero(t, p.Delay)
	require.NotNil(t, p.Success)
	assert.NoError(t, p.Success(&Response{StatusCode: 204}))
	assert.Error(t, p.Success(&Response{StatusCode: 500}))
}

func TestClassify(t *testing.T) {
	retrying := Retrying(3, 0, FieldEquals("SUCCESS", "status"))
	nonIdempotent := retrying
	nonIdempotent.NonIdempotent = true

	tests := []struct {
		name   string
		policy Policy
		resp   *Response
		err    error
		want   OutcomeKind
	}{
		{name: "accepted", policy: retrying, resp: jsonResponse(200, `{"status":"SUCCESS"}`), want: OutcomeSuccess},
		{name: "rejected body", policy: retrying, resp: jsonResponse(200, `{"status":"ERROR"}`), want: OutcomeRetryable},
		{name: "non json body", policy: retrying, resp: &Response{StatusCode: 200, Body: []byte("<html>")}, want: OutcomeRetryable},
		{name: "network error", policy: retrying, err: NewNetworkError("dial", errors.New("refused")), want: OutcomeRetryable},
		{name: "timeout error", policy: retrying, err: NewTimeoutError("slow", 0), want: OutcomeRetryable},
		{name: "network error non idempotent", policy: nonIdempotent, err: NewNetworkError("dial", nil), want: OutcomeFatal},
		{name: "cancelled", policy: retrying, err: context.Canceled, want: OutcomeFatal},
		{name: "validation error", policy: retrying, err: NewValidationError("bad", "url"), want: OutcomeFatal},
		{name: "no response", policy: retrying, want: OutcomeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(tt.policy, tt.resp, tt.err)
			assert.Equal(t, tt.want, out.Kind, out.Reason)
			if tt.want != OutcomeSuccess {
				assert.Error(t, out.Err)
				assert.NotEmpty(t, out.Reason)
			}
		})
	}
}

func TestClassifyRejectionCarriesResponse(t *testing.T) {
	resp := jsonResponse(409, `{"code":"DUPLICATE"}`)
	out := Classify(SingleShot(StatusIn(201)), resp, nil)

	assert.Equal(t, OutcomeRetryable, out.Kind)
	assert.Same(t, resp, out.Response)
	assert.True(t, IsRejectedWithStatus(out.Err, 409))
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "retryable", OutcomeRetryable.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
	assert.Equal(t, "unknown", OutcomeUnknown.String())
}

func TestStatusPredicates(t *testing.T) {
	assert.NoError(t, StatusIn(201, 204)(&Response{StatusCode: 204}))
	assert.Error(t, StatusIn(201)(&Response{StatusCode: 200}))

	assert.NoError(t, StatusRange(200, 299)(&Response{StatusCode: 299}))
	assert.NoError(t, StatusRange(200, 299)(&Response{StatusCode: 200}))
	assert.Error(t, StatusRange(200, 299)(&Response{StatusCode: 300}))
}

func TestFieldEquals(t *testing.T) {
	pred := FieldEquals("SUCCESS", "status")

	assert.NoError(t, pred(jsonResponse(200, `{"status":"SUCCESS"}`)))
	assert.Error(t, pred(jsonResponse(200, `{"status":"FAILURE"}`)))
	assert.Error(t, pred(jsonResponse(200, `{"other":"SUCCESS"}`)))
	assert.Error(t, pred(&Response{StatusCode: 200, Body: []byte(`status=SUCCESS`)}))
}

func TestMinCount(t *testing.T) {
	pred := MinCount(1, "data", "totalItems")

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "two items", body: `{"data":{"totalItems":2}}`},
		{name: "one item", body: `{"data":{"totalItems":1}}`},
		{name: "zero items", body: `{"data":{"totalItems":0}}`, wantErr: true},
		{name: "missing counts as zero", body: `{"data":{}}`, wantErr: true},
		{name: "not a number", body: `{"data":{"totalItems":"many"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pred(jsonResponse(200, tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNonEmptyField(t *testing.T) {
	pred := NonEmptyField("status", "loadBalancer", "ingress")

	assert.NoError(t, pred(jsonResponse(200, `{"status":{"loadBalancer":{"ingress":[{"ip":"10.0.0.1"}]}}}`)))
	assert.Error(t, pred(jsonResponse(200, `{"status":{"loadBalancer":{"ingress":[]}}}`)))
	assert.Error(t, pred(jsonResponse(200, `{"status":{"loadBalancer":{}}}`)))
	assert.Error(t, pred(jsonResponse(200, `{"status":{"loadBalancer":{"ingress":null}}}`)))
	assert.Error(t, pred(jsonResponse(200, `{"status":{"loadBalancer":{"ingress":""}}}`)))
}

func TestAll(t *testing.T) {
	pred := All(StatusIn(200), NonEmptyField("access_token"))

	assert.NoError(t, pred(jsonResponse(200, `{"access_token":"abc"}`)))
	assert.Error(t, pred(jsonResponse(401, `{"access_token":"abc"}`)))
	assert.Error(t, pred(jsonResponse(200, `{"error":"invalid_grant"}`)))
}

func TestResponseAccessors(t *testing.T) {
	resp := jsonResponse(200, `{"data":{"content":[{"user":{"uuid":"u-1"}},{"user":{"uuid":"u-2"}}],"total":2,"flag":true,"none":null}}`)

	t.Run("field", func(t *testing.T) {
		v, err := resp.Field("data", "content", "[0]", "user", "uuid")
		require.NoError(t, err)
		assert.Equal(t, "u-1", v)

		v, err = resp.Field("data", "flag")
		require.NoError(t, err)
		assert.Equal(t, "true", v)

		v, err = resp.Field("data", "none")
		require.NoError(t, err)
		assert.Empty(t, v)

		_, err = resp.Field("data", "missing")
		assert.Error(t, err)
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, int64(2), resp.IntOr(-1, "data", "total"))
		assert.Equal(t, int64(-1), resp.IntOr(-1, "data", "missing"))
	})

	t.Run("each", func(t *testing.T) {
		var ids []string
		err := resp.Each(func(element []byte) error {
			item := &Response{Body: element, JSON: true}
			id, err := item.Field("user", "uuid")
			ids = append(ids, id)
			return err
		}, "data", "content")
		require.NoError(t, err)
		assert.Equal(t, []string{"u-1", "u-2"}, ids)
	})

	t.Run("each stops on first error", func(t *testing.T) {
		calls := 0
		stop := errors.New("stop")
		err := resp.Each(func([]byte) error {
			calls++
			return stop
		}, "data", "content")
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("non json", func(t *testing.T) {
		plain := &Response{Body: []byte("kind: Service")}
		_, err := plain.Field("kind")
		assert.Error(t, err)
		assert.Equal(t, int64(7), plain.IntOr(7, "x"))
		assert.Error(t, plain.Each(func([]byte) error { return nil }, "x"))
	})
}
