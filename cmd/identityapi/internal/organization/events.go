package organization

import (
	"fmt"
	"time"
)

// Event is a domain notification raised by an aggregate mutation. Events are
// collected on the aggregate and drained by the caller after a successful
// save.
type Event interface {
	EventID() string
	EventType() string
	OrganizationID() string
	OccurredAt() time.Time
}

// Event types.
const (
	TypeOrganizationCreated       = "organization.created"
	TypeOrganizationUpdated       = "organization.updated"
	TypeOrganizationLogoUpdated   = "organization.logo_updated"
	TypeOrganizationBannerUpdated = "organization.banner_updated"
	TypeOrganizationDeactivated   = "organization.deactivated"
	TypeOrganizationActivated     = "organization.activated"
	TypeMemberAdded               = "member.added"
	TypeMemberRemoved             = "member.removed"
	TypeMemberRoleAssigned        = "member.role_assigned"
	TypeMemberRoleRevoked         = "member.role_revoked"
	TypeRoleCreated               = "role.created"
	TypeRoleUpdated               = "role.updated"
	TypeRoleDeleted               = "role.deleted"
	TypeRolePermissionsUpdated    = "role.permissions_updated"
	TypeInvitationCreated         = "invitation.created"
	TypeInvitationAccepted        = "invitation.accepted"
	TypeInvitationRejected        = "invitation.rejected"
	TypeUserUpdated               = "user.updated"
	TypeUserDeactivated           = "user.deactivated"
	TypeUserActivated             = "user.activated"
)

// EventMeta carries the fields shared by every event.
type EventMeta struct {
	ID    string    `json:"event_id"`
	OrgID string    `json:"organization_id"`
	At    time.Time `json:"occurred_at"`
}

func (m EventMeta) EventID() string        { return m.ID }
func (m EventMeta) OrganizationID() string { return m.OrgID }
func (m EventMeta) OccurredAt() time.Time  { return m.At }

type OrganizationCreated struct {
	EventMeta
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

type OrganizationUpdated struct {
	EventMeta
	Name        string `json:"name"`
	Description string `json:"description"`
}

type OrganizationLogoUpdated struct {
	EventMeta
	LogoURL string `json:"logo_url"`
}

type OrganizationBannerUpdated struct {
	EventMeta
	BannerURL string `json:"banner_url"`
}

type OrganizationDeactivated struct{ EventMeta }

type OrganizationActivated struct{ EventMeta }

type MemberAdded struct {
	EventMeta
	MemberID string `json:"member_id"`
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id"`
}

type MemberRemoved struct {
	EventMeta
	MemberID string `json:"member_id"`
	UserID   string `json:"user_id"`
}

type MemberRoleAssigned struct {
	EventMeta
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type MemberRoleRevoked struct {
	EventMeta
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type RoleCreated struct {
	EventMeta
	RoleID string `json:"role_id"`
	Name   string `json:"name"`
}

type RoleUpdated struct {
	EventMeta
	RoleID string `json:"role_id"`
	Name   string `json:"name"`
}

type RoleDeleted struct {
	EventMeta
	RoleID string `json:"role_id"`
	Name   string `json:"name"`
}

type RolePermissionsUpdated struct {
	EventMeta
	RoleID          string   `json:"role_id"`
	PermissionNames []string `json:"permission_names"`
}

// InvitationCreated carries the token so a notification sender can build the
// acceptance link.
type InvitationCreated struct {
	EventMeta
	InvitationID string    `json:"invitation_id"`
	Email        string    `json:"email"`
	RoleID       string    `json:"role_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type InvitationAcceptedEvent struct {
	EventMeta
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
	UserID       string `json:"user_id"`
}

type InvitationRejectedEvent struct {
	EventMeta
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
}

// User events are not scoped to an organization; OrganizationID is empty.
type UserUpdated struct {
	EventMeta
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type UserDeactivated struct {
	EventMeta
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type UserActivated struct {
	EventMeta
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (*OrganizationCreated) EventType() string       { return TypeOrganizationCreated }
func (*OrganizationUpdated) EventType() string       { return TypeOrganizationUpdated }
func (*OrganizationLogoUpdated) EventType() string   { return TypeOrganizationLogoUpdated }
func (*OrganizationBannerUpdated) EventType() string { return TypeOrganizationBannerUpdated }
func (*OrganizationDeactivated) EventType() string   { return TypeOrganizationDeactivated }
func (*OrganizationActivated) EventType() string     { return TypeOrganizationActivated }
func (*MemberAdded) EventType() string               { return TypeMemberAdded }
func (*MemberRemoved) EventType() string             { return TypeMemberRemoved }
func (*MemberRoleAssigned) EventType() string        { return TypeMemberRoleAssigned }
func (*MemberRoleRevoked) EventType() string         { return TypeMemberRoleRevoked }
func (*RoleCreated) EventType() string               { return TypeRoleCreated }
func (*RoleUpdated) EventType() string               { return TypeRoleUpdated }
func (*RoleDeleted) EventType() string               { return TypeRoleDeleted }
func (*RolePermissionsUpdated) EventType() string    { return TypeRolePermissionsUpdated }
func (*InvitationCreated) EventType() string         { return TypeInvitationCreated }
func (*InvitationAcceptedEvent) EventType() string   { return TypeInvitationAccepted }
func (*InvitationRejectedEvent) EventType() string   { return TypeInvitationRejected }
func (*UserUpdated) EventType() string               { return TypeUserUpdated }
func (*UserDeactivated) EventType() string           { return TypeUserDeactivated }
func (*UserActivated) EventType() string             { return TypeUserActivated }

var eventFactories = map[string]func() Event{
	TypeOrganizationCreated:       func() Event { return &OrganizationCreated{} },
	TypeOrganizationUpdated:       func() Event { return &OrganizationUpdated{} },
	TypeOrganizationLogoUpdated:   func() Event { return &OrganizationLogoUpdated{} },
	TypeOrganizationBannerUpdated: func() Event { return &OrganizationBannerUpdated{} },
	TypeOrganizationDeactivated:   func() Event { return &OrganizationDeactivated{} },
	TypeOrganizationActivated:     func() Event { return &OrganizationActivated{} },
	TypeMemberAdded:               func() Event { return &MemberAdded{} },
	TypeMemberRemoved:             func() Event { return &MemberRemoved{} },
	TypeMemberRoleAssigned:        func() Event { return &MemberRoleAssigned{} },
	TypeMemberRoleRevoked:         func() Event { return &MemberRoleRevoked{} },
	TypeRoleCreated:               func() Event { return &RoleCreated{} },
	TypeRoleUpdated:               func() Event { return &RoleUpdated{} },
	TypeRoleDeleted:               func() Event { return &RoleDeleted{} },
	TypeRolePermissionsUpdated:    func() Event { return &RolePermissionsUpdated{} },
	TypeInvitationCreated:         func() Event { return &InvitationCreated{} },
	TypeInvitationAccepted:        func() Event { return &InvitationAcceptedEvent{} },
	TypeInvitationRejected:        func() Event { return &InvitationRejectedEvent{} },
	TypeUserUpdated:               func() Event { return &UserUpdated{} },
	TypeUserDeactivated:           func() Event { return &UserDeactivated{} },
	TypeUserActivated:             func() Event { return &UserActivated{} },
}

// NewEvent returns an empty event of the given type, ready to be decoded into.
func NewEvent(eventType string) (Event, error) {
	f, ok := eventFactories[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	return f(), nil
}

// EventTypes lists every known event type.
func EventTypes() []string {
	out := make([]string, 0, len(eventFactories))
	for t := range eventFactories {
		out = append(out, t)
	}
	return out
}
