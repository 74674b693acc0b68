package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		assert.Equal(t, KindNotFound, KindOf(NotFound("member %d not found", 1)))
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("failed to record payment: %w", InvalidState("no outstanding due"))
		assert.Equal(t, KindInvalidState, KindOf(err))
		assert.True(t, Is(err, KindInvalidState))
	})

	t.Run("unclassified is internal", func(t *testing.T) {
		assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	})

	t.Run("nil is not any kind", func(t *testing.T) {
		assert.False(t, Is(nil, KindInternal))
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindInvalidState, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindInternal, http.StatusInternalServerError},
		{Kind("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "amount must be positive", PublicMessage(Validation("amount must be positive")))
	assert.Equal(t, "internal server error", PublicMessage(Internal("failed to commit", errors.New("conn reset"))))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("raw driver error")))
	assert.Equal(t, "unauthorized", PublicMessage(Unauthorized("token signature mismatch")))
}

func TestErrorString(t *testing.T) {
	err := Internal("failed to commit", errors.New("conn reset"))
	assert.Equal(t, "failed to commit: conn reset", err.Error())
	assert.True(t, errors.Is(err, err.Err))
}
