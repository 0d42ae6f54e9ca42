package errors

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, CodeFileReadFailed, "reading main.rs", CategorySystem)

	assert.Equal(t, "[FILE_READ_FAILED] reading main.rs: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, CategorySystem, GetCategory(err))
	assert.False(t, IsRetryable(err))
}

func TestIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("patch failed: %w", User(CodeHunkMismatch, "hunk 2 did not match"))

	assert.ErrorIs(t, err, &AppError{Code: CodeHunkMismatch})
	assert.NotErrorIs(t, err, &AppError{Code: CodeInvalidDiff})
	assert.Equal(t, CodeHunkMismatch, GetCode(err))
	assert.Equal(t, CodeToolExecutionFailed, GetCode(io.EOF))
}

func TestHasCodeWalksWrappedErrors(t *testing.T) {
	inner := Temporary(CodeShellTimedOut, "command timed out")
	outer := Wrap(inner, CodeCommandFailed, "cargo check failed", CategoryTemporary)

	assert.True(t, HasCode(outer, CodeShellTimedOut))
	assert.True(t, HasCode(outer, CodeCommandFailed))
	assert.False(t, HasCode(outer, CodeFileNotFound))
	assert.True(t, IsRetryable(outer), "retryable flag is inherited from the wrapped AppError")
}

func TestInvalidArgumentsListsSortedFields(t *testing.T) {
	err := InvalidArguments(map[string]string{
		"file_path": "required",
		"diff":      "expected string, got number",
	})

	assert.Equal(t, CodeInvalidArguments, err.Code)
	assert.Equal(t, CategoryUser, err.Category)
	assert.Equal(t, []string{"diff", "file_path"}, err.Context["fields"])
	assert.Equal(t, "invalid arguments: diff: expected string, got number; file_path: required", err.Message)
}

func TestBuilderDropsEmptyContext(t *testing.T) {
	err := NewBuilder(CodeNotRustProject, "no Cargo.toml").User().Build()
	assert.Nil(t, err.Context)

	err = NewBuilder(CodeCrateNotFound, "missing").WithContext("crate", "serde").WithSuggestion("check spelling").Build()
	assert.Equal(t, "serde", err.Context["crate"])
	assert.Equal(t, []string{"check spelling"}, GetSuggestions(err))
}

func TestDoWithResultRetriesTemporaryErrors(t *testing.T) {
	policy := &Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2, RetryIf: IsRetryable}

	calls := 0
	got, err := DoWithResult(context.Background(), policy, func() (string, error) {
		calls++
		if calls < 3 {
			return "", Temporary(CodeNetworkUnavailable, "connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func() error {
		calls++
		return Permanent(CodeCrateNotFound, "no such crate")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CodeCrateNotFound, GetCode(err))
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := &Policy{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1, RetryIf: IsRetryable}

	calls := 0
	err := Do(ctx, policy, func() error {
		calls++
		cancel()
		return Temporary(CodeNetworkUnavailable, "down")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("crates.io", &CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute, HalfOpenAttempts: 1})
	cb.now = func() time.Time { return now }

	fail := func() (int, error) { return 0, Temporary(CodeNetworkUnavailable, "down") }
	succeed := func() (int, error) { return 1, nil }

	_, _ = ExecuteWithBreaker(cb, nil, fail)
	_, _ = ExecuteWithBreaker(cb, nil, fail)
	assert.Equal(t, StateOpen, cb.State())

	_, err := ExecuteWithBreaker(cb, nil, succeed)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeNetworkUnavailable))

	now = now.Add(2 * time.Minute)
	got, err := ExecuteWithBreaker(cb, nil, succeed)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker("crates.io", &CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenAttempts: 1})

	notFound := func() (int, error) { return 0, Permanent(CodeCrateNotFound, "no such crate") }
	_, err := ExecuteWithBreaker(cb, IsRetryable, notFound)

	require.Error(t, err)
	assert.Equal(t, StateClosed, cb.State())
}
