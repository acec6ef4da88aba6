package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "boom", Err: fmt.Errorf("db down")}
	assert.Equal(t, "INTERNAL_ERROR: boom: db down", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "no sale"}
	assert.Equal(t, "NOT_FOUND: no sale", bare.Error())
}

func TestConstructors_WrapSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		sentinel error
		status   int
	}{
		{"not found", NotFound("sale", "s-1"), ErrNotFound, http.StatusNotFound},
		{"already exists", AlreadyExists("client", "email", "a@b.co"), ErrAlreadyExists, http.StatusConflict},
		{"invalid input", InvalidInput("cart is empty"), ErrInvalidInput, http.StatusBadRequest},
		{"unauthorized", Unauthorized("missing tenant"), ErrUnauthorized, http.StatusUnauthorized},
		{"conflict", Conflict("stale"), ErrConflict, http.StatusConflict},
		{"insufficient stock", InsufficientStock("Silver 4mm rings"), ErrInsufficientStock, http.StatusConflict},
		{"payment failed", PaymentFailed("declined"), ErrPaymentFailed, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestInsufficientStock_MessageNamesItem(t *testing.T) {
	err := InsufficientStock("Rose gold rings")
	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Contains(t, err.Message, "Rose gold rings")
}

func TestHTTPStatus_WrappedSentinels(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("get item: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("deduct: %w", ErrInsufficientStock)))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(fmt.Errorf("commit: %w", ErrSaleFailed)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrServiceUnavail))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("mystery")))
}

func TestInternal_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "an internal error occurred", err.Message)
}
