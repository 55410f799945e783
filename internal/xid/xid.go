package xid

import (
	"github.com/google/uuid"
)

// New returns a time-ordered identifier, prefixed when prefix is not empty.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}
