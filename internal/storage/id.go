package storage

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// IDShort is the display length used in CLI output.
	IDShort = 8
	// IDMinLen is the minimum prefix length matched against IDs.
	IDMinLen = 4
)

// NewSessionID returns a 32 character hex identifier.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShortID trims id for display.
func ShortID(id string) string {
	if len(id) > IDShort {
		return id[:IDShort]
	}
	return id
}
