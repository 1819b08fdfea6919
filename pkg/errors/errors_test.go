package errors

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundCarriesEntity(t *testing.T) {
	err := NotFound("course", "c-1")
	assert.Equal(t, CodeNotFound, err.Code)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "course not found", err.Message)
	assert.Equal(t, "course", err.Details["entity"])
	assert.Equal(t, "c-1", err.Details["key"])
}

func TestDuplicateKeyCarriesField(t *testing.T) {
	err := DuplicateKey("email", "john@example.com")
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "email", err.Details["field"])
	assert.Contains(t, err.Message, "john@example.com")
}

func TestInfrastructureRetryable(t *testing.T) {
	timeout := Infrastructure(fmt.Errorf("lock course: %w", context.DeadlineExceeded), "failed to enroll")
	assert.True(t, timeout.Retryable)
	assert.Equal(t, http.StatusInternalServerError, timeout.Status)

	badConn := Infrastructure(driver.ErrBadConn, "failed to load")
	assert.True(t, badConn.Retryable)

	other := Infrastructure(fmt.Errorf("syntax error"), "failed to load")
	assert.False(t, other.Retryable)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("tx: %w", BusinessRule(CodeCapacityExceeded, "full"))
	assert.True(t, HasCode(err, CodeCapacityExceeded))
	assert.False(t, HasCode(err, CodeNotEnrolled))
	assert.False(t, HasCode(fmt.Errorf("plain"), CodeInternal))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, CodeInternal, appErr.Code)

	typed := NotFound("student", "s-1")
	assert.Same(t, typed, FromError(typed))
	assert.Nil(t, FromError(nil))
}
