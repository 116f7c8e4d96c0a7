package domain

import "strings"

// EnvironmentID identifies a Docker environment (one daemon endpoint).
type EnvironmentID string

// OrganizationID identifies the tenant owning environments.
type OrganizationID string

// RequireNonEmpty returns ErrInvalidArgument when value is blank.
func RequireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return InvalidArgument("%s is required", field)
	}
	return nil
}
