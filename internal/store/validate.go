package store

import "fmt"

// MaxGroupIDLength is the maximum allowed length for a group identifier.
// Matches the VARCHAR(64) key columns in the SQL schemas.
const MaxGroupIDLength = 64

// ValidateGroupID checks that a group identifier is non-empty and fits the
// key columns.
func ValidateGroupID(id string) error {
	if id == "" {
		return fmt.Errorf("group identifier is empty")
	}
	if len(id) > MaxGroupIDLength {
		return fmt.Errorf("group identifier too long: %d chars (max %d)", len(id), MaxGroupIDLength)
	}
	return nil
}
