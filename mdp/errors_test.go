package mdp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWithContextAndUnwrap(t *testing.T) {
	cause := errors.New("dial failed")
	err := NewConnectionFailedError("tcp://127.0.0.1:5555", cause).WithContext("attempt", 1)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, 1, err.Context["attempt"])
	assert.Contains(t, err.Error(), "tcp://127.0.0.1:5555")
}

func TestErrorIsComparesByCode(t *testing.T) {
	a := NewTimeoutError("a timed out", ErrTimeout)
	b := NewTimeoutError("b timed out", ErrTimeout)
	c := NewInvalidServiceError("bogus", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewTimeoutError("timed out", ErrTimeout)))
	assert.True(t, IsRetryableError(NewConnectionFailedError("tcp://x", errors.New("refused"))))
	assert.True(t, IsRetryableError(NewMDPError(ErrCodeSocketError, "poll failed", nil)))
	assert.False(t, IsRetryableError(NewInvalidServiceError("bogus", nil)))
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(ErrTimeout))
}

func TestIsPermanentError(t *testing.T) {
	assert.True(t, IsPermanentError(NewInvalidMessageError("bad frame", nil)))
	assert.True(t, IsPermanentError(NewInvalidServiceError("bogus", nil)))
	assert.True(t, IsPermanentError(NewServiceNotFoundError("missing", nil)))
	assert.False(t, IsPermanentError(NewTimeoutError("timed out", ErrTimeout)))
	assert.False(t, IsPermanentError(nil))
}
