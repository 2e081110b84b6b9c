package httphandler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
)

// SettingsGateway defines the backend settings operations.
type SettingsGateway interface {
	Settings(ctx context.Context) (notification.Settings, error)
	UpdateSettings(ctx context.Context, patch notification.SettingsPatch) (notification.Settings, error)
	SendTest(ctx context.Context) error
}

// SettingsHandler passes settings requests through to the backend.
type SettingsHandler struct {
	gateway SettingsGateway
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(gateway SettingsGateway) *SettingsHandler {
	return &SettingsHandler{gateway: gateway}
}

// RegisterRoutes registers settings routes.
func (h *SettingsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/settings", h.Get)
	e.PUT("/settings", h.Update)
	e.POST("/settings/test", h.SendTest)
}

// Get handles GET /settings.
func (h *SettingsHandler) Get(c echo.Context) error {
	settings, err := h.gateway.Settings(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, settings)
}

// Update handles PUT /settings. Only the fields present in the body are changed.
func (h *SettingsHandler) Update(c echo.Context) error {
	var patch notification.SettingsPatch
	if err := c.Bind(&patch); err != nil {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	if patch.IsEmpty() {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_INPUT", "no settings to update")
	}

	settings, err := h.gateway.UpdateSettings(c.Request().Context(), patch)
	if err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, settings)
}

// SendTest handles POST /settings/test. The test notification arrives through
// the regular delivery channels.
func (h *SettingsHandler) SendTest(c echo.Context) error {
	if err := h.gateway.SendTest(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondAccepted(c, nil)
}
