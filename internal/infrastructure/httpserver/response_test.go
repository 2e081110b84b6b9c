package httpserver_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
)

func TestRespondOK(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, httpserver.RespondOK(c, map[string]int{"unread": 2}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"unread":2}}`, rec.Body.String())
}

func TestRespondAccepted(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPut, "/", nil), rec)

	require.NoError(t, httpserver.RespondAccepted(c, nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"not found", errs.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"invalid input", fmt.Errorf("%w: id", errs.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{"session required", errs.ErrSessionRequired, http.StatusUnauthorized, "SESSION_REQUIRED"},
		{"backend auth", fmt.Errorf("mark_read: %w", errs.ErrAuth), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"permission denied", errs.ErrPermissionDenied, http.StatusForbidden, "PERMISSION_DENIED"},
		{"unsupported", errs.ErrPlatformUnsupported, http.StatusNotImplemented, "PUSH_UNSUPPORTED"},
		{"transport", fmt.Errorf("list: %w", errs.ErrTransport), http.StatusBadGateway, "BACKEND_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, httpserver.RespondError(c, tt.err))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.expectedErr+`"`)
		})
	}
}

func TestRespondErrorWithCode(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, httpserver.RespondErrorWithCode(c, http.StatusConflict, "PUSH_FAILED", "subscribe failed"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"PUSH_FAILED","message":"subscribe failed"}}`, rec.Body.String())
}
