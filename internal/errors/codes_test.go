package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := PersistenceFailed("pending_actions", io.ErrUnexpectedEOF)

	assert.Equal(t, "[PERSISTENCE_FAILED] failed to persist pending_actions: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "[NOT_FOUND] action not found: abc", NotFound("action", "abc").Error())
}

func TestIsCode_Wrapped(t *testing.T) {
	base := SafetyViolation("増額率50%は上限20%を超えています")
	wrapped := fmt.Errorf("execute: %w", base)

	assert.True(t, IsCode(wrapped, ErrCodeSafetyViolation))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
	assert.Equal(t, ErrCodeSafetyViolation, GetCodeFromError(wrapped, ErrCodeInvalidArgument))
	assert.Equal(t, ErrCodeInvalidArgument, GetCodeFromError(io.EOF, ErrCodeInvalidArgument))
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Unauthorized("no token"), http.StatusUnauthorized},
		{InvalidArgument("bad"), http.StatusBadRequest},
		{SafetyViolation("too big"), http.StatusBadRequest},
		{NotFound("action", "x"), http.StatusNotFound},
		{Busy("running"), http.StatusConflict},
		{AdPlatformUnavailable("meta", nil), http.StatusBadGateway},
		{PersistenceFailed("k", nil), http.StatusInternalServerError},
		{RateLimitExceeded("slow down"), http.StatusTooManyRequests},
		{NotConfigured("scheduler"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := InvalidArgument("missing campaign").WithContext("campaign_id", "123")
	assert.Equal(t, "123", err.Context["campaign_id"])
}
