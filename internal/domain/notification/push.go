package notification

import (
	"strings"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

// PushKeys is the key material of a Web Push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription follows the standard Web Push subscription JSON shape.
// One subscription belongs to exactly one (browser, device) pair.
type PushSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *int64   `json:"expirationTime"`
	Keys           PushKeys `json:"keys"`
}

// Validate checks that the subscription can be registered with the backend.
func (s PushSubscription) Validate() error {
	if !strings.HasPrefix(s.Endpoint, "https://") && !strings.HasPrefix(s.Endpoint, "http://") {
		return errs.ErrInvalidInput
	}
	if s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return errs.ErrInvalidInput
	}
	return nil
}

// NativeNotification is what the platform shows on the desktop when a notification arrives.
// Tag equals the notification id so the platform coalesces duplicate deliveries.
type NativeNotification struct {
	Title string
	Body  string
	Icon  string
	Tag   string
}

// DefaultIcon is the icon reference attached to native notifications.
const DefaultIcon = "/icons/notification-192.png"

// NativeFrom builds the native notification shown for n.
func NativeFrom(n Notification) NativeNotification {
	return NativeNotification{
		Title: n.Title,
		Body:  n.Message,
		Icon:  DefaultIcon,
		Tag:   n.ID,
	}
}
