package organization

import (
	"slices"
	"time"
)

// Member binds a user to an organization and to at least one role.
type Member struct {
	ID             string
	UserID         string
	OrganizationID string
	JoinedAt       time.Time
	RoleIDs        []string
}

// AssignRole adds roleID unless the member already holds it. It reports
// whether the role set changed.
func (m *Member) AssignRole(roleID string) bool {
	if m.HasRole(roleID) {
		return false
	}
	m.RoleIDs = append(m.RoleIDs, roleID)
	return true
}

// RemoveRole drops roleID. The last remaining role cannot be removed.
func (m *Member) RemoveRole(roleID string) error {
	idx := slices.Index(m.RoleIDs, roleID)
	if idx < 0 {
		return ErrRoleNotAssigned
	}
	if len(m.RoleIDs) == 1 {
		return ErrLastRole
	}
	m.RoleIDs = slices.Delete(m.RoleIDs, idx, idx+1)
	return nil
}

func (m Member) HasRole(roleID string) bool {
	return slices.Contains(m.RoleIDs, roleID)
}

func (m Member) clone() Member {
	m.RoleIDs = slices.Clone(m.RoleIDs)
	return m
}
