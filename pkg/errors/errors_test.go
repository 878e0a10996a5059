package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrBookUnavailable, "book 7 has no copies left")

	assert.True(t, stdErrors.Is(err, ErrBookUnavailable))
	assert.False(t, stdErrors.Is(err, ErrNoActiveLoan))
	assert.Equal(t, "book 7 has no copies left", err.Message)
	assert.Equal(t, "no copies available", ErrBookUnavailable.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", Clone(ErrNotFound, "student not found"))
	assert.Equal(t, http.StatusNotFound, FromError(wrapped).Status)

	plain := FromError(stdErrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Contains(t, plain.Error(), "boom")

	assert.Nil(t, FromError(nil))
}
