package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrNotFound, "shift not found")
	assert.Equal(t, "shift not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	appErr := FromError(cause)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, cause)

	typed := Internal(cause, "failed to load shift")
	assert.Same(t, typed, FromError(fmt.Errorf("outer: %w", typed)))
	assert.Equal(t, "failed to load shift: dial tcp: refused", typed.Error())
}
