// Package domain defines the records, settings fields and error taxonomy shared
// by the relay bot components.
package domain

const (
	// RoleOwner is the statically configured owner.
	RoleOwner = "owner"
	// RoleAdmin is a stored, revocable admin.
	RoleAdmin = "admin"
	// RoleUser has no privileges.
	RoleUser = "user"
)

// IsPrivileged reports whether the role may use management commands.
func IsPrivileged(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}
