package httpdto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	learnit_errors "learnit-events/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("thread 4: %w", learnit_errors.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{fmt.Errorf("%w: limit", learnit_errors.ErrInvalidInput), http.StatusBadRequest, CodeInvalidInput},
		{learnit_errors.ErrMalformedMessage, http.StatusBadRequest, CodeInvalidInput},
		{learnit_errors.ErrServiceUnavailable, http.StatusServiceUnavailable, CodeUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := StatusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(fmt.Errorf("%w: thread 9", learnit_errors.ErrNotFound))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeNotFound, resp.Code)
	assert.Equal(t, "not found: thread 9", resp.Error)
}
