package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// ID identifies an operation run, such as one ingestion batch.
type ID string

func (c ID) String() string {
	return string(c)
}

func (c ID) IsZero() bool {
	return c == ""
}

// NewID returns a sortable unique run identifier.
func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return ID(id.String()), nil
}

func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// NewChunkID returns a random UUID for a stored chunk.
func NewChunkID() string {
	return uuid.NewString()
}

// IsChunkID reports whether s is a well formed chunk UUID.
func IsChunkID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
