package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		kind       Kind
		httpStatus int
	}{
		{"validation", Validation("bad %s", "input"), KindValidation, http.StatusBadRequest},
		{"not found", NotFound("cabinet %q not found", "A001"), KindNotFound, http.StatusNotFound},
		{"unauthorized", Unauthorized("invalid api key"), KindUnauthorized, http.StatusUnauthorized},
		{"conflict", Conflict("cabinet not available"), KindConflict, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("pay order: %w", Conflict("insufficient balance")), KindConflict, http.StatusConflict},
		{"plain error", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
			assert.Equal(t, tc.httpStatus, KindOf(tc.err).HTTPStatus())
			assert.True(t, Is(tc.err, tc.kind))
		})
	}
}

func TestMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "failed to load order")

	assert.Equal(t, "failed to load order", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", Message(errors.New("raw driver error")))
	assert.Equal(t, "insufficient balance", Message(fmt.Errorf("debit: %w", Conflict("insufficient balance"))))
	assert.False(t, Is(nil, KindInternal))
}

func TestInvalidFields(t *testing.T) {
	err := fmt.Errorf("report: %w", InvalidFields("invalid status report", map[string]string{"A1.lock_angle": "must be between 0 and 360"}))

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "invalid status report", Message(err))
	assert.Equal(t, map[string]string{"A1.lock_angle": "must be between 0 and 360"}, FieldsOf(err))
	assert.Nil(t, FieldsOf(Conflict("busy")))
	assert.Nil(t, FieldsOf(errors.New("plain")))
}
