package organization

import (
	"sort"
	"strings"
)

// Category groups permissions for presentation.
type Category string

const (
	CategoryOrganization Category = "Organization"
	CategoryMembers      Category = "Members"
	CategoryRoles        Category = "Roles"
	CategoryInvitations  Category = "Invitations"
	CategoryProjects     Category = "Projects"
	CategoryOther        Category = "Other"
)

// Permission names known to the catalog.
const (
	PermOrganizationView   = "organization.view"
	PermOrganizationManage = "organization.manage"
	PermMembersView        = "members.view"
	PermMembersManage      = "members.manage"
	PermRolesView          = "roles.view"
	PermRolesManage        = "roles.manage"
	PermInvitationsView    = "invitations.view"
	PermInvitationsManage  = "invitations.manage"
)

// Permission is an immutable catalog entry shared by every organization.
type Permission struct {
	Name        string
	Description string
	Category    Category
}

var catalog = []Permission{
	newPermission(PermOrganizationManage, "Manage organization settings"),
	newPermission(PermOrganizationView, "View organization details"),
	newPermission(PermMembersManage, "Manage organization members"),
	newPermission(PermMembersView, "View organization members"),
	newPermission(PermRolesManage, "Manage organization roles"),
	newPermission(PermRolesView, "View organization roles"),
	newPermission(PermInvitationsManage, "Manage organization invitations"),
	newPermission(PermInvitationsView, "View organization invitations"),
}

var catalogIndex = func() map[string]Permission {
	idx := make(map[string]Permission, len(catalog))
	for _, p := range catalog {
		idx[p.Name] = p
	}
	return idx
}()

func newPermission(name, description string) Permission {
	return Permission{Name: name, Description: description, Category: CategoryOf(name)}
}

// CategoryOf derives the category from the permission name prefix.
func CategoryOf(name string) Category {
	prefix, _, _ := strings.Cut(name, ".")
	switch strings.ToLower(prefix) {
	case "organization":
		return CategoryOrganization
	case "members":
		return CategoryMembers
	case "roles":
		return CategoryRoles
	case "invitations":
		return CategoryInvitations
	case "projects":
		return CategoryProjects
	default:
		return CategoryOther
	}
}

// LookupPermission returns the catalog entry for name.
func LookupPermission(name string) (Permission, bool) {
	p, ok := catalogIndex[name]
	return p, ok
}

// Permissions returns the whole catalog in declaration order.
func Permissions() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// PermissionNames returns every permission name in declaration order.
func PermissionNames() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return names
}

// PermissionsByCategory groups the catalog by category.
func PermissionsByCategory() map[Category][]Permission {
	out := make(map[Category][]Permission)
	for _, p := range catalog {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}

// PagePermissions returns one page of the catalog ordered by name together
// with the total number of entries. page is 1-based.
func PagePermissions(page, pageSize int) ([]Permission, int) {
	all := Permissions()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = len(all)
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []Permission{}, len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all)
}

// ValidatePermissionNames fails when any name is not in the catalog.
func ValidatePermissionNames(names []string) error {
	var unknown []string
	for _, n := range names {
		if _, ok := catalogIndex[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return invalid("permissions", "unknown permissions: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// normalizePermissions drops duplicates and orders names for stable storage.
func normalizePermissions(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func systemRolePermissions(roleName string) []string {
	switch roleName {
	case AdminRoleName:
		return normalizePermissions(PermissionNames())
	case MemberRoleName:
		var views []string
		for _, p := range catalog {
			if strings.HasSuffix(p.Name, ".view") {
				views = append(views, p.Name)
			}
		}
		return normalizePermissions(views)
	case GuestRoleName:
		return []string{PermOrganizationView}
	default:
		return nil
	}
}
