package organization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-bexpr"

	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// MemberView is a member with its role names resolved.
type MemberView struct {
	MemberID  string    `json:"member_id"`
	UserID    string    `json:"user_id"`
	RoleIDs   []string  `json:"role_ids"`
	RoleNames []string  `json:"role_names"`
	IsOwner   bool      `json:"is_owner"`
	JoinedAt  time.Time `json:"joined_at"`
}

// InvitationView is an invitation as shown to organization members. The
// token is never included.
type InvitationView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	RoleID    string    `json:"role_id"`
	RoleName  string    `json:"role_name"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// GetOrganization returns the organization with its members. Only members
// and the owner may read it.
func (s *Service) GetOrganization(ctx context.Context, requestedBy, orgID string) (*domain.Organization, error) {
	org, err := s.orgs.GetByIDWithMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.HasAccess(requestedBy) {
		return nil, forbidden(requestedBy, orgID)
	}
	return org, nil
}

// ListUserOrganizations returns one page of the organizations userID owns or
// belongs to and their total count.
func (s *Service) ListUserOrganizations(ctx context.Context, userID string, page, pageSize int) ([]*domain.Organization, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, fmt.Errorf("%w: user is not authenticated", domain.ErrForbidden)
	}
	return s.orgs.ListByUserID(ctx, userID, page, pageSize)
}

// ListMembers returns the members matching filter, a go-bexpr expression over
// MemberView fields, e.g. `"Admin" in role_names`.
func (s *Service) ListMembers(ctx context.Context, requestedBy, orgID, filter string) ([]MemberView, error) {
	eval, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Require(org, requestedBy, domain.PermMembersView); err != nil {
		return nil, err
	}

	views := make([]MemberView, 0, len(org.Members()))
	for _, m := range org.Members() {
		view := memberView(org, m)
		ok, err := matches(eval, memberFields(view))
		if err != nil {
			return nil, err
		}
		if ok {
			views = append(views, view)
		}
	}
	return views, nil
}

// GetMemberRoles returns the roles userID holds. Members may always read
// their own roles.
func (s *Service) GetMemberRoles(ctx context.Context, requestedBy, orgID, userID string) ([]domain.Role, error) {
	org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if requestedBy != userID || !org.HasAccess(requestedBy) {
		if err := s.authorizer.Require(org, requestedBy, domain.PermMembersView); err != nil {
			return nil, err
		}
	}
	m, ok := org.Member(userID)
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrMemberNotFound)
	}
	roles := make([]domain.Role, 0, len(m.RoleIDs))
	for _, id := range m.RoleIDs {
		if r, ok := org.Role(id); ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (s *Service) ListRoles(ctx context.Context, requestedBy, orgID string) ([]domain.Role, error) {
	org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Require(org, requestedBy, domain.PermRolesView); err != nil {
		return nil, err
	}
	return org.Roles(), nil
}

func (s *Service) GetRole(ctx context.Context, requestedBy, orgID, roleID string) (domain.Role, error) {
	org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, orgID)
	if err != nil {
		return domain.Role{}, err
	}
	if err := s.authorizer.Require(org, requestedBy, domain.PermRolesView); err != nil {
		return domain.Role{}, err
	}
	r, ok := org.Role(roleID)
	if !ok {
		return domain.Role{}, fmt.Errorf("role %s: %w", roleID, domain.ErrRoleNotFound)
	}
	return r, nil
}

// ListInvitations returns invitations matching filter, a go-bexpr expression
// over InvitationView fields, e.g. `status == "Pending"`.
func (s *Service) ListInvitations(ctx context.Context, requestedBy, orgID, filter string) ([]InvitationView, error) {
	eval, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByIDWithAll(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Require(org, requestedBy, domain.PermInvitationsView); err != nil {
		return nil, err
	}

	now := org.Now()
	views := make([]InvitationView, 0, len(org.Invitations()))
	for _, inv := range org.Invitations() {
		view := invitationView(org, inv, now)
		ok, err := matches(eval, invitationFields(view))
		if err != nil {
			return nil, err
		}
		if ok {
			views = append(views, view)
		}
	}
	return views, nil
}

// GetInvitation returns one invitation to a member allowed to view
// invitations or to the invitee.
func (s *Service) GetInvitation(ctx context.Context, requestedBy, orgID, invitationID string) (InvitationView, error) {
	org, err := s.orgs.GetByIDWithAll(ctx, orgID)
	if err != nil {
		return InvitationView{}, err
	}
	inv, ok := org.Invitation(invitationID)
	if !ok {
		return InvitationView{}, fmt.Errorf("invitation %s: %w", invitationID, domain.ErrInvitationNotFound)
	}

	allowed, err := s.authorizer.Can(org, requestedBy, domain.PermInvitationsView)
	if err != nil {
		return InvitationView{}, err
	}
	if !allowed {
		user, err := s.users.GetByID(ctx, requestedBy)
		if err != nil || !strings.EqualFold(user.Email, inv.Email) {
			return InvitationView{}, forbidden(requestedBy, orgID)
		}
	}
	return invitationView(org, inv, org.Now()), nil
}

// ListPermissions returns one page of the permission catalog and the total.
func (s *Service) ListPermissions(ctx context.Context, page, pageSize int) ([]domain.Permission, int, error) {
	if s.permissions == nil {
		perms, total := domain.PagePermissions(page, pageSize)
		return perms, total, nil
	}
	rows, total, err := s.permissions.List(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.Permission, len(rows))
	for i, row := range rows {
		out[i] = domain.Permission{Name: row.Name, Description: row.Description, Category: domain.Category(row.Category)}
	}
	return out, total, nil
}

func memberView(org *domain.Organization, m domain.Member) MemberView {
	names := make([]string, 0, len(m.RoleIDs))
	for _, id := range m.RoleIDs {
		if r, ok := org.Role(id); ok {
			names = append(names, r.Name)
		}
	}
	return MemberView{
		MemberID:  m.ID,
		UserID:    m.UserID,
		RoleIDs:   m.RoleIDs,
		RoleNames: names,
		IsOwner:   m.UserID == org.OwnerID(),
		JoinedAt:  m.JoinedAt,
	}
}

func invitationView(org *domain.Organization, inv domain.Invitation, now time.Time) InvitationView {
	view := InvitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		RoleID:    inv.RoleID,
		Status:    string(inv.DisplayStatus(now)),
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
	if r, ok := org.Role(inv.RoleID); ok {
		view.RoleName = r.Name
	}
	return view
}

func memberFields(v MemberView) map[string]any {
	return map[string]any{
		"member_id":  v.MemberID,
		"user_id":    v.UserID,
		"role_ids":   v.RoleIDs,
		"role_names": v.RoleNames,
		"is_owner":   v.IsOwner,
		"joined_at":  v.JoinedAt.Format(time.RFC3339),
	}
}

func invitationFields(v InvitationView) map[string]any {
	return map[string]any{
		"id":         v.ID,
		"email":      v.Email,
		"role_id":    v.RoleID,
		"role_name":  v.RoleName,
		"status":     v.Status,
		"expires_at": v.ExpiresAt.Format(time.RFC3339),
		"created_at": v.CreatedAt.Format(time.RFC3339),
	}
}

// compileFilter parses a listing filter. An empty filter matches everything.
func compileFilter(filter string) (*bexpr.Evaluator, error) {
	if strings.TrimSpace(filter) == "" {
		return nil, nil
	}
	eval, err := bexpr.CreateEvaluator(filter)
	if err != nil {
		var v ValidationErrors
		v.add("filter", err.Error())
		return nil, v
	}
	return eval, nil
}

func matches(eval *bexpr.Evaluator, fields map[string]any) (bool, error) {
	if eval == nil {
		return true, nil
	}
	ok, err := eval.Evaluate(fields)
	if err != nil {
		var v ValidationErrors
		v.add("filter", err.Error())
		return false, v
	}
	return ok, nil
}

func forbidden(userID, orgID string) error {
	return fmt.Errorf("%w: %s has no access to organization %s", domain.ErrForbidden, userID, orgID)
}
