package database

import (
	"fmt"

	"github.com/google/uuid"
)

func generateID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate record id: %w", err)
	}
	return id.String(), nil
}

// parseRecordID reports whether id is a well-formed record id.
func parseRecordID(id string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(id)
	return parsed, err == nil
}
