// Package ids centralizes the uuid.UUID helpers shared by the pages and
// frame packages so that id generation and parsing stay in one place
// instead of being duplicated per package.
package ids

import "github.com/google/uuid"

// New mints a fresh random identifier for a PageFrame or PhysicalPage.
func New() uuid.UUID {
	return uuid.New()
}

// Parse parses a textual identifier back into a uuid.UUID.
func Parse(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// Bytes returns the 16-byte wire representation of id.
func Bytes(id uuid.UUID) []byte {
	return id[:]
}
