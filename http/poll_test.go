package http

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/field-workshops/labkit/logger"
)

func TestPollSucceedsOnThirdAttempt(t *testing.T) {
	var logs bytes.Buffer
	calls := 0

	err := Poll(context.Background(), logger.NewWithWriter(&logs, "info", false), Retrying(5, testRetryDelay, nil), "ingress",
		func(context.Context, int) (bool, error) {
			calls++
			return calls == 3, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, strings.Count(logs.String(), "Condition not met, retrying"))
}

func TestPollExhaustion(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), nil, Retrying(4, testRetryDelay, nil), "ingress",
		func(_ context.Context, attempt int) (bool, error) {
			calls++
			assert.Equal(t, calls, attempt)
			return false, nil
		})

	require.Error(t, err)
	assert.Equal(t, 4, calls)

	var exhausted *AttemptsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, ErrConditionNotMet)
	assert.Contains(t, err.Error(), "ingress")
}

func TestPollProbeErrorsAreRetryable(t *testing.T) {
	transient := errors.New("service not found")
	calls := 0

	err := Poll(context.Background(), nil, Retrying(3, testRetryDelay, nil), "service",
		func(context.Context, int) (bool, error) {
			calls++
			return false, transient
		})

	assert.Equal(t, 3, calls)
	assert.True(t, IsErrorType(err, ExhaustedError))
	assert.ErrorIs(t, err, transient)
}

func TestPollStopIsFatal(t *testing.T) {
	forbidden := errors.New("forbidden")
	calls := 0

	err := Poll(context.Background(), nil, Retrying(5, testRetryDelay, nil), "service",
		func(context.Context, int) (bool, error) {
			calls++
			return false, Stop(forbidden)
		})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, forbidden)
	assert.False(t, IsErrorType(err, ExhaustedError))
	assert.NoError(t, Stop(nil))
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Poll(ctx, nil, Retrying(100, time.Second, nil), "api",
		func(context.Context, int) (bool, error) { return false, nil })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollSingleAttempt(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), nil, Policy{}, "once",
		func(context.Context, int) (bool, error) {
			calls++
			return false, nil
		})
	assert.Equal(t, 1, calls)
	assert.True(t, IsErrorType(err, ExhaustedError))
}
