package httphandler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/inboxsync/internal/application/inbox"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
	"github.com/lllypuk/inboxsync/internal/service"
)

// InboxService defines the user actions on the inbox.
// Declared on the consumer side per project guidelines.
type InboxService interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// SnapshotSource provides the current inbox state.
type SnapshotSource interface {
	Snapshot() inbox.Snapshot
}

// StatusSource provides the activation status.
type StatusSource interface {
	Status() service.Status
}

// InboxResponse represents the inbox in API responses.
type InboxResponse struct {
	Items       []notification.Notification `json:"items"`
	UnreadCount int                         `json:"unread_count"`
	Pending     int                         `json:"pending"`
	Active      bool                        `json:"active"`
	Realtime    string                      `json:"realtime"`
	Transport   string                      `json:"transport,omitempty"`
}

// InboxHandler handles inbox requests.
type InboxHandler struct {
	inbox     InboxService
	snapshots SnapshotSource
	status    StatusSource
}

// NewInboxHandler creates a new InboxHandler. status may be nil.
func NewInboxHandler(in InboxService, snapshots SnapshotSource, status StatusSource) *InboxHandler {
	return &InboxHandler{
		inbox:     in,
		snapshots: snapshots,
		status:    status,
	}
}

// RegisterRoutes registers inbox routes.
func (h *InboxHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/inbox", h.Get)
	e.PUT("/inbox/read-all", h.MarkAllRead)
	e.PUT("/inbox/:id/read", h.MarkRead)
	e.DELETE("/inbox/:id", h.Delete)
}

// Get handles GET /inbox.
func (h *InboxHandler) Get(c echo.Context) error {
	return httpserver.RespondOK(c, h.response())
}

// MarkRead handles PUT /inbox/:id/read.
// The item is marked locally first; a backend failure reverts it and is reported.
func (h *InboxHandler) MarkRead(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_NOTIFICATION_ID", "notification id is required")
	}

	if err := h.inbox.MarkRead(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, h.response())
}

// MarkAllRead handles PUT /inbox/read-all.
func (h *InboxHandler) MarkAllRead(c echo.Context) error {
	if err := h.inbox.MarkAllRead(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, h.response())
}

// Delete handles DELETE /inbox/:id.
func (h *InboxHandler) Delete(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_NOTIFICATION_ID", "notification id is required")
	}

	if err := h.inbox.Delete(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	return httpserver.RespondOK(c, h.response())
}

func (h *InboxHandler) response() InboxResponse {
	snap := h.snapshots.Snapshot()
	items := snap.Items
	if items == nil {
		items = []notification.Notification{}
	}

	resp := InboxResponse{
		Items:       items,
		UnreadCount: snap.UnreadCount,
		Pending:     snap.Pending,
		Realtime:    "disconnected",
	}
	if h.status != nil {
		status := h.status.Status()
		resp.Active = status.Active
		resp.Realtime = status.Realtime.String()
		resp.Transport = status.Transport
	}
	return resp
}
