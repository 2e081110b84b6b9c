// Package gateway implements the REST client for the backend notification API.
// The client holds no inbox state; every call is a single request/response.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/session"
)

const (
	notificationsPath = "/notifications"
	maxErrorBodySize  = 4096
)

// StatusError is returned for unexpected non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// RequestObserver records request outcomes. Declared on the consumer side.
type RequestObserver interface {
	ObserveRequest(op string, outcome string, duration time.Duration)
}

// Client talks to the notification REST surface on behalf of one session.
type Client struct {
	session  *session.Session
	logger   *slog.Logger
	observer RequestObserver
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver sets the request observer (metrics).
func WithObserver(observer RequestObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient creates a gateway client bound to a session.
func NewClient(s *session.Session, opts ...Option) *Client {
	c := &Client{
		session: s,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// listResponse is the object form of the list endpoint.
type listResponse struct {
	Notifications []notification.Notification `json:"notifications"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type vapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type pushSubscriptionRequest struct {
	Subscription notification.PushSubscription `json:"subscription"`
}

// List returns up to limit notifications, newest first, starting at offset.
func (c *Client) List(ctx context.Context, limit, offset int) ([]notification.Notification, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var raw json.RawMessage
	if err := c.do(ctx, "list notifications", http.MethodGet, notificationsPath+"?"+query.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	// The endpoint answers with either a bare array or {"notifications": [...]}.
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []notification.Notification
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode notifications: %w", err)
		}
		return items, nil
	}

	var resp listResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	if resp.Notifications == nil {
		return []notification.Notification{}, nil
	}
	return resp.Notifications, nil
}

// UnreadCount returns the server-side unread counter, never negative.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := c.do(ctx, "unread count", http.MethodGet, notificationsPath+"/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return max(resp.Count, 0), nil
}

// MarkRead marks one notification read. Already-read or missing ids are not an error.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return errs.ErrInvalidInput
	}
	err := c.do(ctx, "mark read", http.MethodPut, notificationsPath+"/"+url.PathEscape(id)+"/read", nil, nil)
	return ignoreNotFound(err)
}

// MarkAllRead marks every notification of the user read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, "mark all read", http.MethodPut, notificationsPath+"/read-all", nil, nil)
}

// Delete removes one notification. Missing ids are not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errs.ErrInvalidInput
	}
	err := c.do(ctx, "delete notification", http.MethodDelete, notificationsPath+"/"+url.PathEscape(id), nil, nil)
	return ignoreNotFound(err)
}

// Settings returns the per-channel notification settings.
func (c *Client) Settings(ctx context.Context) (notification.Settings, error) {
	var settings notification.Settings
	if err := c.do(ctx, "get settings", http.MethodGet, notificationsPath+"/settings", nil, &settings); err != nil {
		return notification.Settings{}, err
	}
	return settings, nil
}

// UpdateSettings sends a partial settings update and returns the stored settings.
func (c *Client) UpdateSettings(ctx context.Context, patch notification.SettingsPatch) (notification.Settings, error) {
	var settings notification.Settings
	if err := c.do(ctx, "update settings", http.MethodPut, notificationsPath+"/settings", patch, &settings); err != nil {
		return notification.Settings{}, err
	}
	return settings, nil
}

// SendTest asks the backend to push a test notification.
func (c *Client) SendTest(ctx context.Context) error {
	return c.do(ctx, "send test", http.MethodPost, notificationsPath+"/send-test", nil, nil)
}

// VapidPublicKey returns the backend's application server key (base64url).
func (c *Client) VapidPublicKey(ctx context.Context) (string, error) {
	var resp vapidKeyResponse
	if err := c.do(ctx, "vapid public key", http.MethodGet, notificationsPath+"/vapid-public-key", nil, &resp); err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("vapid public key: %w: empty key", errs.ErrInvalidInput)
	}
	return resp.PublicKey, nil
}

// RegisterPushSubscription stores this device's push subscription server-side.
func (c *Client) RegisterPushSubscription(ctx context.Context, sub notification.PushSubscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("register push subscription: %w", err)
	}
	body := pushSubscriptionRequest{Subscription: sub}
	return c.do(ctx, "register push subscription", http.MethodPost, notificationsPath+"/push-subscription", body, nil)
}

// UnregisterPushSubscription deletes this device's push subscription server-side.
func (c *Client) UnregisterPushSubscription(ctx context.Context) error {
	err := c.do(ctx, "unregister push subscription", http.MethodDelete, notificationsPath+"/push-subscription", nil, nil)
	return ignoreNotFound(err)
}

// do performs one authenticated JSON request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, in, out)
	c.observe(op, err, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		payload, marshalErr := json.Marshal(in)
		if marshalErr != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, marshalErr)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.session.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		authErr := fmt.Errorf("%s: %w", op, errs.ErrAuth)
		c.session.ReportUnauthorized(ctx, authErr)
		return authErr
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		if errors.Is(decodeErr, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: failed to decode response: %w", op, decodeErr)
	}

	return nil
}

func (c *Client) observe(op string, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRequest(op, Outcome(err), d)
}

// Outcome classifies an error into a low-cardinality label.
func Outcome(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errs.ErrAuth):
		return "unauthorized"
	case errors.Is(err, errs.ErrTransport):
		return "transport"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.As(err, &statusErr):
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	default:
		return "error"
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}
