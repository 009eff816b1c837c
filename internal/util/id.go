package util

import "github.com/google/uuid"

// NewID returns a random UUID string used for run identifiers.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the first eight characters of id, or id itself if shorter.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
