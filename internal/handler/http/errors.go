// Package httphandler exposes the local control API over the inbox, the
// notification settings and the push subscription.
package httphandler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/inboxsync/internal/infrastructure/gateway"
	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
)

// handleError reports backend status failures as 502 and everything else through
// the shared error mapping.
func handleError(c echo.Context, err error) error {
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		return httpserver.RespondErrorWithCode(c, http.StatusBadGateway, "BACKEND_ERROR", statusErr.Error())
	}
	return httpserver.RespondError(c, err)
}
