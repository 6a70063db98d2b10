package organization

import (
	"slices"
	"time"
)

// System role names.
const (
	AdminRoleName  = "Admin"
	MemberRoleName = "Member"
	GuestRoleName  = "Guest"
)

var systemRoles = []struct {
	name        string
	description string
	color       string
}{
	{AdminRoleName, "Administrator", "#FF0000"},
	{MemberRoleName, "Regular member", "#00FF00"},
	{GuestRoleName, "Guest with read-only access", "#0000FF"},
}

// IsSystemRoleName reports whether name is one of the roles created at
// organization initialization. The comparison is exact.
func IsSystemRoleName(name string) bool {
	for _, r := range systemRoles {
		if r.name == name {
			return true
		}
	}
	return false
}

// Role is a named bundle of permissions scoped to one organization.
type Role struct {
	ID              string
	OrganizationID  string
	Name            string
	Description     string
	Color           string
	PermissionNames []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r Role) IsSystem() bool {
	return IsSystemRoleName(r.Name)
}

func (r Role) HasPermission(name string) bool {
	return slices.Contains(r.PermissionNames, name)
}

// Update applies new attributes after the caller checked organization-wide
// name uniqueness. Organization.UpdateRole is the entry point that performs
// that check.
func (r *Role) Update(name, description, color string, now time.Time) error {
	if err := ValidateRoleName(name); err != nil {
		return err
	}
	if err := ValidateRoleDescription(description); err != nil {
		return err
	}
	if err := ValidateColor(color); err != nil {
		return err
	}
	if r.IsSystem() && name != r.Name {
		return ErrSystemRole
	}
	r.Name = name
	r.Description = description
	r.Color = color
	r.UpdatedAt = now
	return nil
}

// UpdatePermissions replaces the permission set wholesale.
func (r *Role) UpdatePermissions(names []string, now time.Time) error {
	if err := ValidatePermissionNames(names); err != nil {
		return err
	}
	r.PermissionNames = normalizePermissions(names)
	r.UpdatedAt = now
	return nil
}

func (r Role) clone() Role {
	r.PermissionNames = slices.Clone(r.PermissionNames)
	return r
}
