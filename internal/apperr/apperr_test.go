package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedErrorsMatchSentinelByCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("save message: %w", Persistence("insert chat", cause))

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodePersistence, CodeOf(err))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeUnauthorized, CodeOf(Unauthorized("deleter mismatch")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeCrypto, "decrypt", errors.New("message authentication failed"))
	assert.Equal(t, "decrypt: message authentication failed", err.Error())
	assert.Equal(t, "not found", NotFound("not found").Error())
}
