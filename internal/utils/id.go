package utils

import "github.com/google/uuid"

// NewID returns a random session identifier. IDs are never reused.
func NewID() string {
	return uuid.NewString()
}
