package core

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUID string.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsValidUUID reports whether s parses as a UUID of any version.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// IsValidUUIDv7 reports whether s is a version 7, RFC 4122 variant UUID.
func IsValidUUIDv7(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 7 && id.Variant() == uuid.RFC4122
}
