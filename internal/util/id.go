package util

import "github.com/google/uuid"

// GenerateSessionID returns a new opaque session identifier.
func GenerateSessionID() string {
	return uuid.NewString()
}
