// Package uuid wraps google/uuid with a string-backed identifier type used for
// locally generated ids (pending optimistic actions, connection ids, push endpoints).
package uuid

import (
	"github.com/google/uuid"
)

// UUID is a string-backed UUID.
type UUID string

// NewUUID generates a random (v4) UUID.
func NewUUID() UUID {
	return UUID(uuid.New().String())
}

// String returns the canonical string form.
func (u UUID) String() string {
	return string(u)
}

// Short returns the first segment of the UUID, handy for log correlation.
func (u UUID) Short() string {
	s := string(u)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}
