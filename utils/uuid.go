package utils

import "github.com/google/uuid"

// NewBlobID returns a fresh blob reference for object storage.
func NewBlobID() string {
	return uuid.NewString()
}
