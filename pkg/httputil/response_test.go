package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"revenueThisMonth": "10.00"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"revenueThisMonth":"10.00"}`, w.Body.String())
}

func TestWriteSuccessAndCreated(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, "Members fetched", []int{1, 2}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Members fetched","data":[1,2]}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, "Plan created", map[string]int{"id": 1}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"message":"Plan created","data":{"id":1}}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, "Member deleted", nil))
	assert.JSONEq(t, `{"message":"Member deleted"}`, w.Body.String())
}

func TestWriteError_MapsKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperr.Validation("amount must be positive"), http.StatusBadRequest, "amount must be positive"},
		{"invalid state", apperr.InvalidState("member has no outstanding due"), http.StatusBadRequest, "member has no outstanding due"},
		{"conflict", fmt.Errorf("create: %w", apperr.Conflict("email already registered")), http.StatusConflict, "email already registered"},
		{"not found", apperr.NotFound("member 9 not found"), http.StatusNotFound, "member 9 not found"},
		{"unauthorized", apperr.Unauthorized("token expired"), http.StatusUnauthorized, "unauthorized"},
		{"internal", apperr.Internal("commit failed", errors.New("conn reset")), http.StatusInternalServerError, "internal server error"},
		{"unclassified", errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/member", nil)

			WriteError(w, r, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestWriteError_LogsInternalOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	r := httptest.NewRequest(http.MethodPost, "/payment", nil)
	r = r.WithContext(observability.WithLogger(r.Context(), logger))

	WriteError(httptest.NewRecorder(), r, apperr.Validation("bad"))
	assert.Zero(t, buf.Len())

	WriteError(httptest.NewRecorder(), r, errors.New("disk on fire"))
	assert.Contains(t, buf.String(), "disk on fire")
	assert.Contains(t, buf.String(), "/payment")
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "x") }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "x") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "x") }, http.StatusForbidden},
		{"too many", func(w http.ResponseWriter) { WriteTooManyRequests(w, "x") }, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, ErrorResponse{Status: tt.status, Message: "x"}, decodeError(t, w))
		})
	}
}
