// Package organization implements the Organization aggregate: the only entry
// point through which members, roles and invitations of a tenant change.
//
// The aggregate owns flat collections of child entities. Members and
// invitations refer to roles by ID only. Every mutating method either applies
// completely or returns an error and leaves the instance untouched. Successful
// mutations append domain events that the caller drains after persisting.
//
// The aggregate never performs I/O. Checks that need storage (global name
// uniqueness, user existence, authorization) belong to the caller.
package organization

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Organization is the aggregate root of a tenant.
type Organization struct {
	id          string
	name        string
	description string
	ownerID     string
	logoURL     string
	bannerURL   string
	isActive    bool
	version     int
	createdAt   time.Time
	updatedAt   time.Time

	members     []Member
	roles       []Role
	invitations []Invitation
	loaded      Subgraph

	events   []Event
	settings settings
}

// CreateParams holds the attributes of a new organization.
type CreateParams struct {
	Name        string
	OwnerID     string
	Description string
	LogoURL     string
	BannerURL   string
}

// Create validates p and returns a new active organization without members
// or roles. Callers follow up with InitializeRoles and InitializeOwner.
func Create(p CreateParams, opts ...Option) (*Organization, error) {
	if err := ValidateOrganizationName(p.Name); err != nil {
		return nil, err
	}
	if err := ValidateOrganizationDescription(p.Description); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("owner_id", "must not be empty")
	}
	if err := ValidateImageURL("logo_url", p.LogoURL); err != nil {
		return nil, err
	}
	if err := ValidateImageURL("banner_url", p.BannerURL); err != nil {
		return nil, err
	}

	s := newSettings(opts)
	now := s.now()
	o := &Organization{
		id:          s.newID(),
		name:        p.Name,
		description: p.Description,
		ownerID:     p.OwnerID,
		logoURL:     p.LogoURL,
		bannerURL:   p.BannerURL,
		isActive:    true,
		createdAt:   now,
		updatedAt:   now,
		members:     []Member{},
		roles:       []Role{},
		invitations: []Invitation{},
		loaded:      SubgraphAll,
		settings:    s,
	}
	o.raise(&OrganizationCreated{EventMeta: o.meta(now), Name: o.name, OwnerID: o.ownerID})
	return o, nil
}

// ======== Getters ========

func (o *Organization) ID() string           { return o.id }
func (o *Organization) Name() string         { return o.name }
func (o *Organization) Description() string  { return o.description }
func (o *Organization) OwnerID() string      { return o.ownerID }
func (o *Organization) LogoURL() string      { return o.logoURL }
func (o *Organization) BannerURL() string    { return o.bannerURL }
func (o *Organization) IsActive() bool       { return o.isActive }
func (o *Organization) Version() int         { return o.version }
func (o *Organization) CreatedAt() time.Time { return o.createdAt }
func (o *Organization) UpdatedAt() time.Time { return o.updatedAt }
func (o *Organization) Loaded() Subgraph     { return o.loaded }

// Now returns the aggregate's notion of the current time.
func (o *Organization) Now() time.Time { return o.settings.now() }

// Members returns a copy of the member collection.
func (o *Organization) Members() []Member { return cloneMembers(o.members) }

// Roles returns a copy of the role collection.
func (o *Organization) Roles() []Role { return cloneRoles(o.roles) }

// Invitations returns a copy of the invitation collection.
func (o *Organization) Invitations() []Invitation {
	return append([]Invitation(nil), o.invitations...)
}

func (o *Organization) Member(userID string) (Member, bool) {
	if i := o.memberIndex(userID); i >= 0 {
		return o.members[i].clone(), true
	}
	return Member{}, false
}

func (o *Organization) Role(roleID string) (Role, bool) {
	if i := o.roleIndex(roleID); i >= 0 {
		return o.roles[i].clone(), true
	}
	return Role{}, false
}

// RoleByName looks a role up using the configured name matching.
func (o *Organization) RoleByName(name string) (Role, bool) {
	for _, r := range o.roles {
		if o.settings.sameRoleName(r.Name, name) {
			return r.clone(), true
		}
	}
	return Role{}, false
}

func (o *Organization) Invitation(invitationID string) (Invitation, bool) {
	if i := o.invitationIndex(invitationID); i >= 0 {
		return o.invitations[i], true
	}
	return Invitation{}, false
}

// HasAccess reports whether userID is the owner or a member. With members not
// loaded only the owner is recognised.
func (o *Organization) HasAccess(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == o.ownerID || o.memberIndex(userID) >= 0
}

// MemberPermissions returns the union of permission names granted to userID
// through its roles, sorted.
func (o *Organization) MemberPermissions(userID string) []string {
	i := o.memberIndex(userID)
	if i < 0 {
		return nil
	}
	var names []string
	for _, roleID := range o.members[i].RoleIDs {
		if r := o.roleIndex(roleID); r >= 0 {
			names = append(names, o.roles[r].PermissionNames...)
		}
	}
	return normalizePermissions(names)
}

// ======== Outbox ========

// PendingEvents returns the events raised since the last drain.
func (o *Organization) PendingEvents() []Event {
	return append([]Event(nil), o.events...)
}

// DrainEvents returns the pending events and clears the outbox. Call it only
// after the aggregate was saved.
func (o *Organization) DrainEvents() []Event {
	out := o.events
	o.events = nil
	return out
}

// ======== Organization attributes ========

// Update renames the organization and replaces its description. Global name
// uniqueness is checked by the caller.
func (o *Organization) Update(name, description string) error {
	if err := ValidateOrganizationName(name); err != nil {
		return err
	}
	if err := ValidateOrganizationDescription(description); err != nil {
		return err
	}
	now := o.settings.now()
	o.name = name
	o.description = description
	o.touch(now)
	o.raise(&OrganizationUpdated{EventMeta: o.meta(now), Name: name, Description: description})
	return nil
}

func (o *Organization) UpdateLogo(url string) error {
	if err := ValidateImageURL("logo_url", url); err != nil {
		return err
	}
	now := o.settings.now()
	o.logoURL = url
	o.touch(now)
	o.raise(&OrganizationLogoUpdated{EventMeta: o.meta(now), LogoURL: url})
	return nil
}

func (o *Organization) UpdateBanner(url string) error {
	if err := ValidateImageURL("banner_url", url); err != nil {
		return err
	}
	now := o.settings.now()
	o.bannerURL = url
	o.touch(now)
	o.raise(&OrganizationBannerUpdated{EventMeta: o.meta(now), BannerURL: url})
	return nil
}

// Deactivate marks the organization inactive. Members, roles and invitations
// are kept. Deactivating an inactive organization does nothing.
func (o *Organization) Deactivate() {
	if !o.isActive {
		return
	}
	now := o.settings.now()
	o.isActive = false
	o.touch(now)
	o.raise(&OrganizationDeactivated{EventMeta: o.meta(now)})
}

func (o *Organization) Activate() {
	if o.isActive {
		return
	}
	now := o.settings.now()
	o.isActive = true
	o.touch(now)
	o.raise(&OrganizationActivated{EventMeta: o.meta(now)})
}

// ======== Initialization ========

// InitializeRoles appends the Admin, Member and Guest roles when the
// organization has no roles yet.
func (o *Organization) InitializeRoles() error {
	if err := o.require(SubgraphRoles); err != nil {
		return err
	}
	if len(o.roles) > 0 {
		return nil
	}
	now := o.settings.now()
	for _, sr := range systemRoles {
		r := Role{
			ID:              o.settings.newID(),
			OrganizationID:  o.id,
			Name:            sr.name,
			Description:     sr.description,
			Color:           sr.color,
			PermissionNames: systemRolePermissions(sr.name),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		o.roles = append(o.roles, r)
		o.raise(&RoleCreated{EventMeta: o.meta(now), RoleID: r.ID, Name: r.Name})
	}
	o.touch(now)
	return nil
}

// InitializeOwner makes the owner a member holding the Admin role. It must
// run after InitializeRoles.
func (o *Organization) InitializeOwner() error {
	if err := o.require(SubgraphMembers | SubgraphRoles); err != nil {
		return err
	}
	admin := o.systemRoleIndex(AdminRoleName)
	if admin < 0 {
		return ErrRolesNotInitialized
	}
	now := o.settings.now()
	adminID := o.roles[admin].ID

	if i := o.memberIndex(o.ownerID); i >= 0 {
		if o.members[i].AssignRole(adminID) {
			o.touch(now)
			o.raise(&MemberRoleAssigned{EventMeta: o.meta(now), UserID: o.ownerID, RoleID: adminID})
		}
		return nil
	}
	o.addMember(o.ownerID, adminID, now)
	o.touch(now)
	return nil
}

// ======== Roles ========

// AddRole creates a custom role with no permissions.
func (o *Organization) AddRole(name, description, color string) (Role, error) {
	if err := o.require(SubgraphRoles); err != nil {
		return Role{}, err
	}
	if err := ValidateRoleName(name); err != nil {
		return Role{}, err
	}
	if err := ValidateRoleDescription(description); err != nil {
		return Role{}, err
	}
	if err := ValidateColor(color); err != nil {
		return Role{}, err
	}
	if _, exists := o.RoleByName(name); exists {
		return Role{}, fmt.Errorf("role %q: %w", name, ErrDuplicateRoleName)
	}

	now := o.settings.now()
	r := Role{
		ID:              o.settings.newID(),
		OrganizationID:  o.id,
		Name:            name,
		Description:     description,
		Color:           color,
		PermissionNames: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.roles = append(o.roles, r)
	o.touch(now)
	o.raise(&RoleCreated{EventMeta: o.meta(now), RoleID: r.ID, Name: r.Name})
	return r.clone(), nil
}

// UpdateRole changes a role's attributes. The new name must not collide with
// another role of this organization and system roles keep their names.
func (o *Organization) UpdateRole(roleID, name, description, color string) (Role, error) {
	if err := o.require(SubgraphRoles); err != nil {
		return Role{}, err
	}
	idx := o.roleIndex(roleID)
	if idx < 0 {
		return Role{}, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
	}

	now := o.settings.now()
	updated := o.roles[idx].clone()
	if err := updated.Update(name, description, color, now); err != nil {
		return Role{}, err
	}
	for i, r := range o.roles {
		if i != idx && o.settings.sameRoleName(r.Name, name) {
			return Role{}, fmt.Errorf("role %q: %w", name, ErrDuplicateRoleName)
		}
	}

	o.roles[idx] = updated
	o.touch(now)
	o.raise(&RoleUpdated{EventMeta: o.meta(now), RoleID: roleID, Name: updated.Name})
	return updated.clone(), nil
}

// UpdateRolePermissions replaces the permission set of a role.
func (o *Organization) UpdateRolePermissions(roleID string, names []string) (Role, error) {
	if err := o.require(SubgraphRoles); err != nil {
		return Role{}, err
	}
	idx := o.roleIndex(roleID)
	if idx < 0 {
		return Role{}, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
	}

	now := o.settings.now()
	updated := o.roles[idx].clone()
	if err := updated.UpdatePermissions(names, now); err != nil {
		return Role{}, err
	}

	o.roles[idx] = updated
	o.touch(now)
	o.raise(&RolePermissionsUpdated{
		EventMeta:       o.meta(now),
		RoleID:          roleID,
		PermissionNames: slices.Clone(updated.PermissionNames),
	})
	return updated.clone(), nil
}

// DeleteRole removes a custom role. System roles, roles held by a member and
// roles proposed by a pending invitation cannot be deleted. Accepted,
// rejected and expired invitations that reference the role are removed with
// it so every stored role reference stays resolvable.
func (o *Organization) DeleteRole(roleID string) error {
	if err := o.require(SubgraphAll); err != nil {
		return err
	}
	idx := o.roleIndex(roleID)
	if idx < 0 {
		return fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
	}
	role := o.roles[idx]
	if role.IsSystem() {
		return fmt.Errorf("role %q: %w", role.Name, ErrSystemRole)
	}
	for _, m := range o.members {
		if m.HasRole(roleID) {
			return fmt.Errorf("role %q held by user %s: %w", role.Name, m.UserID, ErrRoleInUse)
		}
	}
	now := o.settings.now()
	for _, inv := range o.invitations {
		if inv.RoleID == roleID && inv.IsPending(now) {
			return fmt.Errorf("role %q proposed by invitation %s: %w", role.Name, inv.ID, ErrRoleInUse)
		}
	}

	o.invitations = slices.DeleteFunc(o.invitations, func(inv Invitation) bool {
		return inv.RoleID == roleID
	})
	o.roles = slices.Delete(o.roles, idx, idx+1)
	o.touch(now)
	o.raise(&RoleDeleted{EventMeta: o.meta(now), RoleID: roleID, Name: role.Name})
	return nil
}

// ======== Members ========

// RemoveMember drops userID from the organization. The owner cannot be
// removed.
func (o *Organization) RemoveMember(userID string) error {
	if err := o.require(SubgraphMembers); err != nil {
		return err
	}
	if userID == o.ownerID {
		return ErrOwnerRemoval
	}
	idx := o.memberIndex(userID)
	if idx < 0 {
		return fmt.Errorf("user %s: %w", userID, ErrMemberNotFound)
	}

	now := o.settings.now()
	m := o.members[idx]
	o.members = slices.Delete(o.members, idx, idx+1)
	o.touch(now)
	o.raise(&MemberRemoved{EventMeta: o.meta(now), MemberID: m.ID, UserID: userID})
	return nil
}

// AssignRoleToMember grants roleID to an existing member. Granting a role the
// member already holds changes nothing.
func (o *Organization) AssignRoleToMember(userID, roleID string) (Member, error) {
	if err := o.require(SubgraphMembers | SubgraphRoles); err != nil {
		return Member{}, err
	}
	if o.roleIndex(roleID) < 0 {
		return Member{}, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
	}
	idx := o.memberIndex(userID)
	if idx < 0 {
		return Member{}, fmt.Errorf("user %s: %w", userID, ErrMemberNotFound)
	}

	if o.members[idx].AssignRole(roleID) {
		now := o.settings.now()
		o.touch(now)
		o.raise(&MemberRoleAssigned{EventMeta: o.meta(now), UserID: userID, RoleID: roleID})
	}
	return o.members[idx].clone(), nil
}

// RevokeRoleFromMember takes roleID away from a member. A member's last role
// cannot be revoked.
func (o *Organization) RevokeRoleFromMember(userID, roleID string) (Member, error) {
	if err := o.require(SubgraphMembers | SubgraphRoles); err != nil {
		return Member{}, err
	}
	if o.roleIndex(roleID) < 0 {
		return Member{}, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
	}
	idx := o.memberIndex(userID)
	if idx < 0 {
		return Member{}, fmt.Errorf("user %s: %w", userID, ErrMemberNotFound)
	}

	updated := o.members[idx].clone()
	if err := updated.RemoveRole(roleID); err != nil {
		return Member{}, fmt.Errorf("revoke role %s from user %s: %w", roleID, userID, err)
	}

	now := o.settings.now()
	o.members[idx] = updated
	o.touch(now)
	o.raise(&MemberRoleRevoked{EventMeta: o.meta(now), UserID: userID, RoleID: roleID})
	return updated.clone(), nil
}

// ======== Invitations ========

// CreateInvitation offers membership with roleID to email. The organization
// must be active and no other pending invitation may exist for the same
// address.
func (o *Organization) CreateInvitation(email, roleID string) (Invitation, error) {
	if err := o.require(SubgraphRoles | SubgraphInvitations); err != nil {
		return Invitation{}, err
	}
	if err := ValidateEmail(email); err != nil {
		return Invitation{}, err
	}
	if !o.isActive {
		return Invitation{}, ErrOrganizationInactive
	}
	if o.roleIndex(roleID) < 0 {
		return Invitation{}, fmt.Errorf("role %s: %w", roleID, ErrRoleNotFound)
	}

	now := o.settings.now()
	normalized := normalizeEmail(email)
	for _, inv := range o.invitations {
		if normalizeEmail(inv.Email) == normalized && inv.IsPending(now) {
			return Invitation{}, fmt.Errorf("email %s: %w", normalized, ErrPendingInvitationExists)
		}
	}

	token, err := o.settings.tokens()
	if err != nil {
		return Invitation{}, fmt.Errorf("create invitation: %w", err)
	}
	if token == "" || len(token) > MaxTokenLength {
		return Invitation{}, fmt.Errorf("create invitation: token length %d outside 1..%d", len(token), MaxTokenLength)
	}

	inv := Invitation{
		ID:             o.settings.newID(),
		OrganizationID: o.id,
		Email:          normalized,
		Token:          token,
		RoleID:         roleID,
		Status:         InvitationPending,
		ExpiresAt:      now.Add(o.settings.ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.invitations = append(o.invitations, inv)
	o.touch(now)
	o.raise(&InvitationCreated{
		EventMeta:    o.meta(now),
		InvitationID: inv.ID,
		Email:        inv.Email,
		RoleID:       roleID,
		Token:        token,
		ExpiresAt:    inv.ExpiresAt,
	})
	return inv, nil
}

// AcceptInvitation completes a pending invitation for userID. The token must
// match and the invitation must be neither terminal nor expired. A user who
// is already a member receives the invited role instead of a second
// membership.
func (o *Organization) AcceptInvitation(invitationID, token, userID string) (Member, error) {
	if err := o.require(SubgraphAll); err != nil {
		return Member{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return Member{}, invalid("user_id", "must not be empty")
	}
	idx := o.invitationIndex(invitationID)
	if idx < 0 {
		return Member{}, fmt.Errorf("invitation %s: %w", invitationID, ErrInvitationNotFound)
	}
	inv := o.invitations[idx]
	now := o.settings.now()
	if err := inv.checkActionable(token, now); err != nil {
		return Member{}, fmt.Errorf("accept invitation %s: %w", invitationID, err)
	}
	if !o.isActive {
		return Member{}, ErrOrganizationInactive
	}
	if o.roleIndex(inv.RoleID) < 0 {
		return Member{}, fmt.Errorf("role %s: %w", inv.RoleID, ErrRoleNotFound)
	}

	inv.Status = InvitationAccepted
	inv.UpdatedAt = now
	o.invitations[idx] = inv
	o.touch(now)
	o.raise(&InvitationAcceptedEvent{EventMeta: o.meta(now), InvitationID: inv.ID, Email: inv.Email, UserID: userID})

	if m := o.memberIndex(userID); m >= 0 {
		if o.members[m].AssignRole(inv.RoleID) {
			o.raise(&MemberRoleAssigned{EventMeta: o.meta(now), UserID: userID, RoleID: inv.RoleID})
		}
		return o.members[m].clone(), nil
	}
	return o.addMember(userID, inv.RoleID, now), nil
}

// RejectInvitation declines a pending invitation. The preconditions match
// AcceptInvitation; no member is created.
func (o *Organization) RejectInvitation(invitationID, token string) (Invitation, error) {
	if err := o.require(SubgraphInvitations); err != nil {
		return Invitation{}, err
	}
	idx := o.invitationIndex(invitationID)
	if idx < 0 {
		return Invitation{}, fmt.Errorf("invitation %s: %w", invitationID, ErrInvitationNotFound)
	}
	inv := o.invitations[idx]
	now := o.settings.now()
	if err := inv.checkActionable(token, now); err != nil {
		return Invitation{}, fmt.Errorf("reject invitation %s: %w", invitationID, err)
	}

	inv.Status = InvitationRejected
	inv.UpdatedAt = now
	o.invitations[idx] = inv
	o.touch(now)
	o.raise(&InvitationRejectedEvent{EventMeta: o.meta(now), InvitationID: inv.ID, Email: inv.Email})
	return inv, nil
}

// ======== internals ========

func (o *Organization) require(s Subgraph) error {
	if !o.loaded.Has(s) {
		return notLoaded(s &^ o.loaded)
	}
	return nil
}

func (o *Organization) addMember(userID, roleID string, now time.Time) Member {
	m := Member{
		ID:             o.settings.newID(),
		UserID:         userID,
		OrganizationID: o.id,
		JoinedAt:       now,
		RoleIDs:        []string{roleID},
	}
	o.members = append(o.members, m)
	o.raise(&MemberAdded{EventMeta: o.meta(now), MemberID: m.ID, UserID: userID, RoleID: roleID})
	return m.clone()
}

func (o *Organization) memberIndex(userID string) int {
	return slices.IndexFunc(o.members, func(m Member) bool { return m.UserID == userID })
}

func (o *Organization) roleIndex(roleID string) int {
	return slices.IndexFunc(o.roles, func(r Role) bool { return r.ID == roleID })
}

// systemRoleIndex matches the exact system role name regardless of the
// configured name matching.
func (o *Organization) systemRoleIndex(name string) int {
	return slices.IndexFunc(o.roles, func(r Role) bool { return r.Name == name })
}

func (o *Organization) invitationIndex(invitationID string) int {
	return slices.IndexFunc(o.invitations, func(i Invitation) bool { return i.ID == invitationID })
}

func (o *Organization) touch(now time.Time) {
	o.updatedAt = now
}

func (o *Organization) meta(now time.Time) EventMeta {
	return EventMeta{ID: o.settings.newID(), OrgID: o.id, At: now}
}

func (o *Organization) raise(e Event) {
	o.events = append(o.events, e)
}
