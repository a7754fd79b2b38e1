package util

import "github.com/google/uuid"

// NewID returns a random identifier for rows and request correlation.
func NewID() string {
	return uuid.NewString()
}
