package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{
			name: "document not found",
			err:  ErrDocumentNotFound,
			want: ClassNotFound,
		},
		{
			name: "index not found",
			err:  ErrIndexNotFound,
			want: ClassNotFound,
		},
		{
			name: "unavailable",
			err:  ErrUnavailable,
			want: ClassRetryable,
		},
		{
			name: "timeout",
			err:  ErrTimeout,
			want: ClassRetryable,
		},
		{
			name: "too many requests",
			err:  ErrTooManyRequests,
			want: ClassRetryable,
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: ClassRetryable,
		},
		{
			name: "context canceled",
			err:  context.Canceled,
			want: ClassRetryable,
		},
		{
			name: "invalid request",
			err:  ErrInvalidRequest,
			want: ClassTerminal,
		},
		{
			name: "version conflict",
			err:  ErrConflict,
			want: ClassTerminal,
		},
		{
			name: "unknown error",
			err:  errors.New("boom"),
			want: ClassUnexpected,
		},
		{
			name: "nil error",
			err:  nil,
			want: ClassUnexpected,
		},
		{
			name: "wrapped sentinel",
			err:  fmt.Errorf("get chart/42: %w", ErrUnavailable),
			want: ClassRetryable,
		},
		{
			name: "sentinel inside Error",
			err: &Error{
				Op:    "search",
				Index: "chart",
				Err:   fmt.Errorf("%w: status 400", ErrInvalidRequest),
			},
			want: ClassTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not_found", ClassNotFound.String())
	assert.Equal(t, "retryable", ClassRetryable.String())
	assert.Equal(t, "terminal", ClassTerminal.String())
	assert.Equal(t, "unexpected", ClassUnexpected.String())
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "operation with index and document",
			err: &Error{
				Op:    "get",
				Index: "chart",
				DocID: "42",
				Err:   ErrDocumentNotFound,
			},
			want: "get chart/42: document not found",
		},
		{
			name: "operation with index only",
			err: &Error{
				Op:    "search",
				Index: "chart",
				Err:   ErrUnavailable,
			},
			want: "search chart: store unavailable",
		},
		{
			name: "operation only",
			err: &Error{
				Op:  "ping",
				Err: ErrTimeout,
			},
			want: "ping: operation timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("%w: connection refused", ErrUnavailable)
	err := &Error{Op: "get", Index: "chart", DocID: "7", Err: inner}

	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsTerminal(err))
}

func TestHelpersRejectNil(t *testing.T) {
	t.Parallel()

	assert.False(t, IsNotFound(nil))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsTerminal(nil))
}
