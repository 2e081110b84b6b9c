package httphandler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
	"github.com/lllypuk/inboxsync/internal/push"
)

// PushService defines the push subscription operations.
type PushService interface {
	State() push.State
	Subscribe(ctx context.Context) bool
	Unsubscribe(ctx context.Context) bool
}

// PushStateResponse represents the push manager state in API responses.
type PushStateResponse struct {
	Supported  bool   `json:"supported"`
	Permission string `json:"permission"`
	Subscribed bool   `json:"subscribed"`
	Endpoint   string `json:"endpoint,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PushHandler handles push subscription requests.
type PushHandler struct {
	push PushService
}

// NewPushHandler creates a new PushHandler.
func NewPushHandler(p PushService) *PushHandler {
	return &PushHandler{push: p}
}

// RegisterRoutes registers push routes.
func (h *PushHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/push", h.Get)
	e.POST("/push/subscription", h.Subscribe)
	e.DELETE("/push/subscription", h.Unsubscribe)
}

// Get handles GET /push.
func (h *PushHandler) Get(c echo.Context) error {
	return httpserver.RespondOK(c, ToPushStateResponse(h.push.State()))
}

// Subscribe handles POST /push/subscription. It may prompt for permission.
func (h *PushHandler) Subscribe(c echo.Context) error {
	if !h.push.Subscribe(c.Request().Context()) {
		return h.failure(c, "subscribe failed")
	}
	return httpserver.RespondOK(c, ToPushStateResponse(h.push.State()))
}

// Unsubscribe handles DELETE /push/subscription.
func (h *PushHandler) Unsubscribe(c echo.Context) error {
	if !h.push.Unsubscribe(c.Request().Context()) {
		return h.failure(c, "unsubscribe failed")
	}
	return httpserver.RespondOK(c, ToPushStateResponse(h.push.State()))
}

func (h *PushHandler) failure(c echo.Context, message string) error {
	state := h.push.State()
	if state.Err == nil {
		return httpserver.RespondErrorWithCode(c, http.StatusInternalServerError, "PUSH_FAILED", message)
	}
	return handleError(c, state.Err)
}

// ToPushStateResponse converts the manager state to PushStateResponse.
func ToPushStateResponse(s push.State) PushStateResponse {
	resp := PushStateResponse{
		Supported:  s.Supported,
		Permission: string(s.Permission),
		Subscribed: s.Subscription != nil,
	}
	if resp.Permission == "" {
		resp.Permission = "default"
	}
	if s.Subscription != nil {
		resp.Endpoint = s.Subscription.Endpoint
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}
