// Package notification holds the client-side notification model: inbox entries,
// per-channel settings and platform push subscriptions.
package notification

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

// Type represents the notification category.
type Type string

const (
	// TypeCalendar is a calendar reminder or invitation.
	TypeCalendar Type = "calendar"
	// TypeEmail is an inbound email digest.
	TypeEmail Type = "email"
	// TypeOperation is a business operation update.
	TypeOperation Type = "operation"
	// TypeTask is a task assignment or due reminder.
	TypeTask Type = "task"
	// TypePayment is a payment received or failed.
	TypePayment Type = "payment"
	// TypeInvoice is an invoice issued or overdue.
	TypeInvoice Type = "invoice"
	// TypeExpense is an expense recorded or approved.
	TypeExpense Type = "expense"
	// TypeOther covers everything else, including categories unknown to this client.
	TypeOther Type = "other"
)

// Types returns every known notification category.
func Types() []Type {
	return []Type{
		TypeCalendar, TypeEmail, TypeOperation, TypeTask,
		TypePayment, TypeInvoice, TypeExpense, TypeOther,
	}
}

// ParseType maps a wire value to a Type. Unknown values map to TypeOther.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t
		}
	}
	return TypeOther
}

// UnmarshalJSON decodes the category leniently so new server-side types never break decoding.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseType(s)
	return nil
}

// Notification is one entry of a user's inbox as delivered by the backend.
// It is created server-side; the client only flips Read or drops it.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	URL       string          `json:"url,omitempty"`
	Read      bool            `json:"read"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Validate checks the fields the sync layer relies on.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return errs.ErrInvalidInput
	}
	return nil
}

// HasURL reports whether the notification carries a deep-link target.
func (n Notification) HasURL() bool {
	return n.URL != ""
}

// Clone returns a copy that shares no mutable memory with n.
func (n Notification) Clone() Notification {
	if n.Data != nil {
		n.Data = append(json.RawMessage(nil), n.Data...)
	}
	return n
}
