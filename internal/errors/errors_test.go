package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "validation", err: Validationf("duration must be positive"), wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "not found", err: ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", ErrNotFound), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "hwid mismatch", err: ErrHwidMismatch, wantStatus: http.StatusConflict, wantCode: "HWID_MISMATCH"},
		{name: "duplicate key", err: ErrDuplicateKey, wantStatus: http.StatusConflict, wantCode: "DUPLICATE_KEY"},
		{name: "illegal transition", err: fmt.Errorf("%w: revoked to pending", ErrIllegalTransition), wantStatus: http.StatusConflict, wantCode: "ILLEGAL_TRANSITION"},
		{name: "gone", err: ErrGone, wantStatus: http.StatusGone, wantCode: "LICENSE_GONE"},
		{name: "key exhaustion", err: ErrKeyExhaustion, wantStatus: http.StatusInternalServerError, wantCode: "KEY_EXHAUSTION"},
		{name: "unknown", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := Map(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestValidationf_WrapsSentinel(t *testing.T) {
	err := Validationf("licenseLength %d unsupported", 14)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "licenseLength 14 unsupported")
}

func TestProblemDetails_MarshalIncludesExtensions(t *testing.T) {
	pd := NewProblemDetails(http.StatusConflict, "/errors/hwid-mismatch", "HWID Mismatch",
		"license is bound to another device", "/api/licenses/activate").
		WithExtension("trace_id", "abc123")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "/errors/hwid-mismatch", decoded["type"])
	assert.Equal(t, float64(http.StatusConflict), decoded["status"])
	assert.Equal(t, "abc123", decoded["trace_id"])
}
