package authz

// Prefix constants for Casbin identifiers
const (
	PrefixUser = "user:"
	PrefixRole = "role:"
)

// UserID creates a Casbin user identifier.
// Example: UserID("u-42") → "user:u-42"
func UserID(id string) string {
	return PrefixUser + id
}

// RoleID creates a Casbin role identifier from an organization role ID.
func RoleID(id string) string {
	return PrefixRole + id
}
