package httphandler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
	"github.com/lllypuk/inboxsync/internal/service"
)

// SyncService controls the activation of the session.
type SyncService interface {
	Status() service.Status
	Reactivate(ctx context.Context) error
	Deactivate()
}

// SyncStatusResponse represents the activation in API responses.
type SyncStatusResponse struct {
	Active          bool   `json:"active"`
	RealtimeRunning bool   `json:"realtime_running"`
	Realtime        string `json:"realtime"`
	Transport       string `json:"transport,omitempty"`
	Reconnects      int    `json:"reconnects"`
}

// SyncHandler handles activation requests.
type SyncHandler struct {
	sync SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(s SyncService) *SyncHandler {
	return &SyncHandler{sync: s}
}

// RegisterRoutes registers sync routes.
func (h *SyncHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/sync", h.Get)
	e.POST("/sync/activate", h.Activate)
	e.POST("/sync/deactivate", h.Deactivate)
}

// Get handles GET /sync.
func (h *SyncHandler) Get(c echo.Context) error {
	return httpserver.RespondOK(c, ToSyncStatusResponse(h.sync.Status()))
}

// Activate handles POST /sync/activate. It re-reads the token and re-arms the
// realtime channel with a fresh reconnect budget.
func (h *SyncHandler) Activate(c echo.Context) error {
	if err := h.sync.Reactivate(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, ToSyncStatusResponse(h.sync.Status()))
}

// Deactivate handles POST /sync/deactivate (logout): sources stop and the inbox is cleared.
func (h *SyncHandler) Deactivate(c echo.Context) error {
	h.sync.Deactivate()
	return httpserver.RespondOK(c, ToSyncStatusResponse(h.sync.Status()))
}

// ToSyncStatusResponse converts the activation status to SyncStatusResponse.
func ToSyncStatusResponse(s service.Status) SyncStatusResponse {
	return SyncStatusResponse{
		Active:          s.Active,
		RealtimeRunning: s.RealtimeRunning,
		Realtime:        s.Realtime.String(),
		Transport:       s.Transport,
		Reconnects:      s.Reconnects,
	}
}
