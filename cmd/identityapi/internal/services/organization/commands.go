package organization

// Command is a state-changing request. RequestedBy is the authenticated user
// on whose behalf it runs.
type Command interface {
	CommandName() string
}

type CreateOrganization struct {
	RequestedBy string
	Name        string
	Description string
	LogoURL     string
	BannerURL   string
}

type UpdateOrganization struct {
	RequestedBy    string
	OrganizationID string
	Name           string
	Description    string
}

type UpdateLogo struct {
	RequestedBy    string
	OrganizationID string
	URL            string
}

type UpdateBanner struct {
	RequestedBy    string
	OrganizationID string
	URL            string
}

type DeactivateOrganization struct {
	RequestedBy    string
	OrganizationID string
}

type ActivateOrganization struct {
	RequestedBy    string
	OrganizationID string
}

type CreateRole struct {
	RequestedBy    string
	OrganizationID string
	Name           string
	Description    string
	Color          string
}

type UpdateRole struct {
	RequestedBy    string
	OrganizationID string
	RoleID         string
	Name           string
	Description    string
	Color          string
}

type DeleteRole struct {
	RequestedBy    string
	OrganizationID string
	RoleID         string
}

// UpdateRolePermissions replaces the role's permission set.
type UpdateRolePermissions struct {
	RequestedBy    string
	OrganizationID string
	RoleID         string
	Permissions    []string
}

type AssignRole struct {
	RequestedBy    string
	OrganizationID string
	UserID         string
	RoleID         string
}

type RevokeRole struct {
	RequestedBy    string
	OrganizationID string
	UserID         string
	RoleID         string
}

// RemoveMember removes UserID. A member may always remove themselves unless
// they own the organization.
type RemoveMember struct {
	RequestedBy    string
	OrganizationID string
	UserID         string
}

type CreateInvitation struct {
	RequestedBy    string
	OrganizationID string
	Email          string
	RoleID         string
}

// AcceptInvitation is sent by the invitee. RequestedBy becomes the member.
type AcceptInvitation struct {
	RequestedBy    string
	OrganizationID string
	InvitationID   string
	Token          string
}

type RejectInvitation struct {
	RequestedBy    string
	OrganizationID string
	InvitationID   string
	Token          string
}

func (CreateOrganization) CommandName() string     { return "CreateOrganization" }
func (UpdateOrganization) CommandName() string     { return "UpdateOrganization" }
func (UpdateLogo) CommandName() string             { return "UpdateLogo" }
func (UpdateBanner) CommandName() string           { return "UpdateBanner" }
func (DeactivateOrganization) CommandName() string { return "DeactivateOrganization" }
func (ActivateOrganization) CommandName() string   { return "ActivateOrganization" }
func (CreateRole) CommandName() string             { return "CreateRole" }
func (UpdateRole) CommandName() string             { return "UpdateRole" }
func (DeleteRole) CommandName() string             { return "DeleteRole" }
func (UpdateRolePermissions) CommandName() string  { return "UpdateRolePermissions" }
func (AssignRole) CommandName() string             { return "AssignRole" }
func (RevokeRole) CommandName() string             { return "RevokeRole" }
func (RemoveMember) CommandName() string           { return "RemoveMember" }
func (CreateInvitation) CommandName() string       { return "CreateInvitation" }
func (AcceptInvitation) CommandName() string       { return "AcceptInvitation" }
func (RejectInvitation) CommandName() string       { return "RejectInvitation" }
