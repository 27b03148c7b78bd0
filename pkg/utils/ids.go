package utils

import (
	"github.com/google/uuid"
)

// NewSessionID generates a fresh conversation session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID reports whether a client-supplied session ID is usable.
func ValidateSessionID(sessionID string) bool {
	_, err := uuid.Parse(sessionID)
	return err == nil
}

// NewRequestID generates a short ID for request tracing.
func NewRequestID() string {
	id := uuid.NewString()
	return id[:8]
}
