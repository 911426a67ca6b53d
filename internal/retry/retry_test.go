package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardmap/internal/errs"
)

func fastPolicy() Policy {
	return Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		MaxAttempts:     5,
	}
}

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "broken connection", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryNonTransientError(t *testing.T) {
	calls := 0
	wantErr := errs.New(errs.CategoryValidation, errs.CodeMappingDoesNotExist, "m1")
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	assert.Equal(t, 1, calls)
	var se *errs.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errs.CodeMappingDoesNotExist, se.Code)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	transient := errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "broken connection", nil)
	policy := fastPolicy()
	policy.MaxAttempts = 3
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return transient
	})
	assert.Equal(t, 3, calls)
	assert.True(t, errs.Is(err, errs.CodeMappingsKillConnectionFailure))
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fastPolicy(), func(ctx context.Context) error {
		calls++
		return errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "broken connection", nil)
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 2, "a cancelled context should stop retrying quickly")
}

func TestDefaultTransientExcludesContextErrors(t *testing.T) {
	assert.False(t, DefaultTransient(context.Canceled))
	assert.False(t, DefaultTransient(context.DeadlineExceeded))
	assert.True(t, DefaultTransient(errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "", nil)))
	assert.False(t, DefaultTransient(errs.New(errs.CategoryValidation, errs.CodeMappingDoesNotExist, "")))
}
