package httphandler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	httphandler "github.com/lllypuk/inboxsync/internal/handler/http"
	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEcho(registrars ...httpserver.RouteRegistrar) *echo.Echo {
	e := echo.New()
	for _, r := range registrars {
		r.RegisterRoutes(e)
	}
	return e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals the envelope and its data into out.
func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) httpserver.Response {
	t.Helper()

	var raw struct {
		Success bool              `json:"success"`
		Data    json.RawMessage   `json:"data"`
		Error   *httpserver.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return httpserver.Response{Success: raw.Success, Error: raw.Error}
}

var (
	_ httpserver.RouteRegistrar = (*httphandler.InboxHandler)(nil)
	_ httpserver.RouteRegistrar = (*httphandler.SettingsHandler)(nil)
	_ httpserver.RouteRegistrar = (*httphandler.PushHandler)(nil)
	_ httpserver.RouteRegistrar = (*httphandler.SyncHandler)(nil)
)
