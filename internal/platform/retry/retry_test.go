package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func policy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	val, err := Do(context.Background(), policy(3), AlwaysRetry, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	val, err := Do(context.Background(), policy(3), AlwaysRetry, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errBoom
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	classify := func(error) Action { return Stop }

	_, err := Do(context.Background(), policy(3), classify, func() (int, error) {
		calls++
		return 0, errBoom
	})

	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), policy(3), AlwaysRetry, func() (int, error) {
		calls++
		return 0, errBoom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestDoVoid_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 5, InitialBackoff: time.Second}
	err := DoVoid(ctx, p, AlwaysRetry, func() error { return errBoom })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
