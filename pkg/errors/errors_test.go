package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ServiceError
		expected string
	}{
		{
			name: "error with cause",
			err: &ServiceError{
				Type:      ErrorTypeStorage,
				Operation: "save_checkpoint",
				Message:   "redis write failed",
				Cause:     errors.New("connection refused"),
			},
			expected: "storage operation 'save_checkpoint' failed: redis write failed (caused by: connection refused)",
		},
		{
			name: "error without cause",
			err: &ServiceError{
				Type:      ErrorTypeValidation,
				Operation: "build_input_script",
				Message:   "timestamp too short",
			},
			expected: "validation operation 'build_input_script' failed: timestamp too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrorTypeNetwork, "publish", "kafka write failed")

	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, New(ErrorTypeNetwork, "x", "y").Unwrap())
}

func TestServiceError_IsMatchesSentinel(t *testing.T) {
	sentinel := New(ErrorTypeValidation, "build_output_script", "pubkey must be 65 bytes")

	decorated := sentinel.Clone().WithContext("length", 33)
	wrapped := fmt.Errorf("building genesis: %w", decorated)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, New(ErrorTypeValidation, "build_input_script", "timestamp too long")))
	assert.Empty(t, sentinel.Context, "Clone must not mutate the sentinel")
}

func TestServiceError_WithContext(t *testing.T) {
	err := New(ErrorTypeStorage, "load_checkpoint", "decode failed").
		WithContext("key", "genesis:checkpoint:abc").
		WithContext("attempt", 2)

	require.Len(t, err.Context, 2)
	assert.Equal(t, "genesis:checkpoint:abc", err.Context["key"])
	assert.Equal(t, 2, err.Context["attempt"])
	assert.Equal(t, 2, GetContext(fmt.Errorf("outer: %w", err))["attempt"])
	assert.Nil(t, GetContext(errors.New("plain")))
}

func TestNewRetryableByType(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		retryable bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeMessaging, true},
		{ErrorTypeValidation, false},
		{ErrorTypeInvariant, false},
		{ErrorTypeStorage, false},
		{ErrorTypeInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			err := New(tt.errorType, "op", "msg")
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeNetwork, "op", "msg"))

	inner := New(ErrorTypeMessaging, "publish", "broker down")
	outer := Wrap(inner, ErrorTypeInternal, "report", "telemetry failed")
	assert.True(t, outer.Retryable, "wrapping keeps the inner retry verdict")
	assert.True(t, IsType(outer, ErrorTypeInternal))

	assert.True(t, Wrap(errors.New("dial tcp: connection refused"), ErrorTypeStorage, "ping", "down").Retryable)
	assert.False(t, Wrap(context.Canceled, ErrorTypeStorage, "ping", "down").Retryable)
	assert.False(t, Wrap(errors.New("bad json"), ErrorTypeStorage, "decode", "bad").Retryable)
}

func TestIsRetryablePlainErrors(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("read: i/o timeout")))
	assert.False(t, IsRetryable(errors.New("permission denied")))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(nil))
}
