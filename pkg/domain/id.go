package domain

import "github.com/google/uuid"

// NewID returns a unique identifier for domain entities.
func NewID() string {
	return uuid.NewString()
}
