package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferenceError_ErrorIncludesSlotAndMessage(t *testing.T) {
	err := NewInferenceError(3, "connection refused", nil, true)
	assert.Equal(t, "inference error (slot 3): connection refused", err.Error())
}

func TestInferenceError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewInferenceError(0, "timeout", cause, true)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestVerificationError_ErrorIncludesTaskID(t *testing.T) {
	err := NewVerificationError("task-7", "assertion failed", nil)
	assert.Equal(t, "verification failed for task task-7: assertion failed", err.Error())
}

func TestToolError_ErrorIncludesToolAndKind(t *testing.T) {
	err := NewToolError("python_exec", "hallucination", "tool does not exist", false)
	assert.Equal(t, "tool error [python_exec/hallucination]: tool does not exist", err.Error())
}

func TestSecurityError_ErrorIncludesPath(t *testing.T) {
	err := NewSecurityError("../../etc/passwd", "path escapes workspace root")
	assert.Equal(t, `security error for path "../../etc/passwd": path escapes workspace root`, err.Error())
}

func TestStoreCorruptionError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := NewStoreCorruptionError("lessons.json", "failed to parse", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestIsRetryable_InferenceErrorHonorsFlag(t *testing.T) {
	assert.True(t, IsRetryable(NewInferenceError(0, "busy", nil, true)))
	assert.False(t, IsRetryable(NewInferenceError(0, "bad request", nil, false)))
}

func TestIsRetryable_ToolErrorHonorsFlag(t *testing.T) {
	assert.True(t, IsRetryable(NewToolError("t", "k", "m", true)))
	assert.False(t, IsRetryable(NewToolError("t", "k", "m", false)))
}

func TestIsRetryable_OtherKindsAreNeverRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewVerificationError("t", "m", nil)))
	assert.False(t, IsRetryable(NewSecurityError("p", "m")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}
