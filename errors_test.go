package reactor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOSErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("eagain")
	err := WrapOSError("read", 7, cause)
	assert.ErrorIs(t, err, cause)

	var osErr *OSError
	assert.ErrorAs(t, err, &osErr)
	assert.Equal(t, "read", osErr.Op)
	assert.Equal(t, 7, osErr.FD)
}

func TestWrapOSErrorNilCauseIsNil(t *testing.T) {
	assert.Nil(t, WrapOSError("read", 7, nil))
}

func TestAssertionFailureMessage(t *testing.T) {
	err := &AssertionFailure{Message: "ready queue corrupted"}
	assert.Contains(t, err.Error(), "ready queue corrupted")
}
