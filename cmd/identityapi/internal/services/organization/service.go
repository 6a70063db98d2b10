// Package organization runs commands and queries against the organization
// aggregate: it pre-validates input, authorizes the caller, loads the
// subgraph a command needs, applies exactly one aggregate method, saves and
// publishes the resulting events.
package organization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/authz"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/events"
	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/repository"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/telemetry"
)

// Service orchestrates organization commands and queries for HTTP handlers
// and the CLI.
type Service struct {
	orgs       repository.OrganizationRepository
	users      repository.UserRepository
	authorizer *authz.Authorizer

	permissions   repository.PermissionRepository
	publisher     events.Publisher
	outbox        repository.OutboxRepository
	metrics       *telemetry.CommandMetrics
	logger        *slog.Logger
	aggregateOpts []domain.Option
}

// NewService constructs a new Service instance.
func NewService(orgs repository.OrganizationRepository, users repository.UserRepository, authorizer *authz.Authorizer) *Service {
	return &Service{
		orgs:       orgs,
		users:      users,
		authorizer: authorizer,
		logger:     slog.Default(),
	}
}

// WithPermissionRepository lists permissions from storage instead of the
// in-memory catalog.
func (s *Service) WithPermissionRepository(repo repository.PermissionRepository) *Service {
	s.permissions = repo
	return s
}

// WithPublisher delivers events in-process right after each save.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

// WithOutbox marks events dispatched once the publisher accepted them.
func (s *Service) WithOutbox(outbox repository.OutboxRepository) *Service {
	s.outbox = outbox
	return s
}

func (s *Service) WithMetrics(m *telemetry.CommandMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// WithAggregateOptions sets the options new organizations are created with.
// Loaded organizations take theirs from the repository.
func (s *Service) WithAggregateOptions(opts ...domain.Option) *Service {
	s.aggregateOpts = opts
	return s
}

// Execute dispatches cmd to its handler and returns the handler's result.
func (s *Service) Execute(ctx context.Context, cmd Command) (any, error) {
	switch c := cmd.(type) {
	case CreateOrganization:
		return s.CreateOrganization(ctx, c)
	case UpdateOrganization:
		return s.UpdateOrganization(ctx, c)
	case UpdateLogo:
		return s.UpdateLogo(ctx, c)
	case UpdateBanner:
		return s.UpdateBanner(ctx, c)
	case DeactivateOrganization:
		return s.DeactivateOrganization(ctx, c)
	case ActivateOrganization:
		return s.ActivateOrganization(ctx, c)
	case CreateRole:
		return s.CreateRole(ctx, c)
	case UpdateRole:
		return s.UpdateRole(ctx, c)
	case DeleteRole:
		return nil, s.DeleteRole(ctx, c)
	case UpdateRolePermissions:
		return s.UpdateRolePermissions(ctx, c)
	case AssignRole:
		return s.AssignRole(ctx, c)
	case RevokeRole:
		return s.RevokeRole(ctx, c)
	case RemoveMember:
		return nil, s.RemoveMember(ctx, c)
	case CreateInvitation:
		return s.CreateInvitation(ctx, c)
	case AcceptInvitation:
		return s.AcceptInvitation(ctx, c)
	case RejectInvitation:
		return s.RejectInvitation(ctx, c)
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

// ======== Organization ========

// CreateOrganization creates an organization owned by the requester with the
// system roles and the owner as its first member.
func (s *Service) CreateOrganization(ctx context.Context, cmd CreateOrganization) (*domain.Organization, error) {
	var org *domain.Organization
	err := s.instrument(ctx, cmd, "", func(ctx context.Context) error {
		var v ValidationErrors
		v.required("requested_by", cmd.RequestedBy)
		v.check(domain.ValidateOrganizationName(cmd.Name))
		v.check(domain.ValidateOrganizationDescription(cmd.Description))
		v.check(domain.ValidateImageURL("logo_url", cmd.LogoURL))
		v.check(domain.ValidateImageURL("banner_url", cmd.BannerURL))
		if err := v.err(); err != nil {
			return err
		}
		if _, err := requireActive(ctx, s.users, cmd.RequestedBy); err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		if err := s.ensureNameAvailable(ctx, cmd.Name); err != nil {
			return err
		}

		created, err := domain.Create(domain.CreateParams{
			Name:        cmd.Name,
			OwnerID:     cmd.RequestedBy,
			Description: cmd.Description,
			LogoURL:     cmd.LogoURL,
			BannerURL:   cmd.BannerURL,
		}, s.aggregateOpts...)
		if err != nil {
			return err
		}
		if err := created.InitializeRoles(); err != nil {
			return err
		}
		if err := created.InitializeOwner(); err != nil {
			return err
		}
		if err := s.orgs.Add(ctx, created); err != nil {
			return err
		}
		s.publish(ctx, created.DrainEvents())
		org = created
		return nil
	})
	return org, err
}

func (s *Service) UpdateOrganization(ctx context.Context, cmd UpdateOrganization) (*domain.Organization, error) {
	var org *domain.Organization
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.check(domain.ValidateOrganizationName(cmd.Name))
		v.check(domain.ValidateOrganizationDescription(cmd.Description))
		if err := v.err(); err != nil {
			return err
		}

		loaded, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(loaded, cmd.RequestedBy, domain.PermOrganizationManage); err != nil {
			return err
		}
		if cmd.Name != loaded.Name() {
			if err := s.ensureNameAvailable(ctx, cmd.Name); err != nil {
				return err
			}
		}
		if err := loaded.Update(cmd.Name, cmd.Description); err != nil {
			return err
		}
		org = loaded
		return s.save(ctx, loaded)
	})
	return org, err
}

func (s *Service) UpdateLogo(ctx context.Context, cmd UpdateLogo) (*domain.Organization, error) {
	return s.updateImage(ctx, cmd, cmd.OrganizationID, cmd.RequestedBy, "logo_url", cmd.URL, (*domain.Organization).UpdateLogo)
}

func (s *Service) UpdateBanner(ctx context.Context, cmd UpdateBanner) (*domain.Organization, error) {
	return s.updateImage(ctx, cmd, cmd.OrganizationID, cmd.RequestedBy, "banner_url", cmd.URL, (*domain.Organization).UpdateBanner)
}

func (s *Service) updateImage(ctx context.Context, cmd Command, orgID, requestedBy, field, url string, apply func(*domain.Organization, string) error) (*domain.Organization, error) {
	var org *domain.Organization
	err := s.instrument(ctx, cmd, orgID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", orgID)
		v.check(domain.ValidateImageURL(field, url))
		if err := v.err(); err != nil {
			return err
		}

		loaded, err := s.orgs.GetByIDWithMembersAndRoles(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(loaded, requestedBy, domain.PermOrganizationManage); err != nil {
			return err
		}
		if err := apply(loaded, url); err != nil {
			return err
		}
		org = loaded
		return s.save(ctx, loaded)
	})
	return org, err
}

// DeactivateOrganization is reserved to the owner.
func (s *Service) DeactivateOrganization(ctx context.Context, cmd DeactivateOrganization) (*domain.Organization, error) {
	return s.setActive(ctx, cmd, cmd.OrganizationID, cmd.RequestedBy, false)
}

// ActivateOrganization is reserved to the owner.
func (s *Service) ActivateOrganization(ctx context.Context, cmd ActivateOrganization) (*domain.Organization, error) {
	return s.setActive(ctx, cmd, cmd.OrganizationID, cmd.RequestedBy, true)
}

func (s *Service) setActive(ctx context.Context, cmd Command, orgID, requestedBy string, active bool) (*domain.Organization, error) {
	var org *domain.Organization
	err := s.instrument(ctx, cmd, orgID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", orgID)
		if err := v.err(); err != nil {
			return err
		}

		loaded, err := s.orgs.GetByID(ctx, orgID)
		if err != nil {
			return err
		}
		if requestedBy == "" || requestedBy != loaded.OwnerID() {
			return fmt.Errorf("%w: only the owner can change the organization status", domain.ErrForbidden)
		}
		if active {
			loaded.Activate()
		} else {
			loaded.Deactivate()
		}
		org = loaded
		if len(loaded.PendingEvents()) == 0 {
			return nil
		}
		return s.save(ctx, loaded)
	})
	return org, err
}

// ======== Roles ========

func (s *Service) CreateRole(ctx context.Context, cmd CreateRole) (domain.Role, error) {
	var role domain.Role
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.check(domain.ValidateRoleName(cmd.Name))
		v.check(domain.ValidateRoleDescription(cmd.Description))
		v.check(domain.ValidateColor(cmd.Color))
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermRolesManage); err != nil {
			return err
		}
		if role, err = org.AddRole(cmd.Name, cmd.Description, cmd.Color); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return role, err
}

func (s *Service) UpdateRole(ctx context.Context, cmd UpdateRole) (domain.Role, error) {
	var role domain.Role
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("role_id", cmd.RoleID)
		v.check(domain.ValidateRoleName(cmd.Name))
		v.check(domain.ValidateRoleDescription(cmd.Description))
		v.check(domain.ValidateColor(cmd.Color))
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermRolesManage); err != nil {
			return err
		}
		if role, err = org.UpdateRole(cmd.RoleID, cmd.Name, cmd.Description, cmd.Color); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return role, err
}

func (s *Service) DeleteRole(ctx context.Context, cmd DeleteRole) error {
	return s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("role_id", cmd.RoleID)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithAll(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermRolesManage); err != nil {
			return err
		}
		if err := org.DeleteRole(cmd.RoleID); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
}

func (s *Service) UpdateRolePermissions(ctx context.Context, cmd UpdateRolePermissions) (domain.Role, error) {
	var role domain.Role
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("role_id", cmd.RoleID)
		v.check(domain.ValidatePermissionNames(cmd.Permissions))
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermRolesManage); err != nil {
			return err
		}
		if role, err = org.UpdateRolePermissions(cmd.RoleID, cmd.Permissions); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return role, err
}

// ======== Members ========

func (s *Service) AssignRole(ctx context.Context, cmd AssignRole) (domain.Member, error) {
	var member domain.Member
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("user_id", cmd.UserID)
		v.required("role_id", cmd.RoleID)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermMembersManage); err != nil {
			return err
		}
		if member, err = org.AssignRoleToMember(cmd.UserID, cmd.RoleID); err != nil {
			return err
		}
		if len(org.PendingEvents()) == 0 {
			return nil
		}
		return s.save(ctx, org)
	})
	return member, err
}

func (s *Service) RevokeRole(ctx context.Context, cmd RevokeRole) (domain.Member, error) {
	var member domain.Member
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("user_id", cmd.UserID)
		v.required("role_id", cmd.RoleID)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermMembersManage); err != nil {
			return err
		}
		if member, err = org.RevokeRoleFromMember(cmd.UserID, cmd.RoleID); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return member, err
}

func (s *Service) RemoveMember(ctx context.Context, cmd RemoveMember) error {
	return s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("user_id", cmd.UserID)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithMembersAndRoles(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if cmd.RequestedBy != cmd.UserID {
			if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermMembersManage); err != nil {
				return err
			}
		}
		if err := org.RemoveMember(cmd.UserID); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
}

// ======== Invitations ========

// CreateInvitation invites an email address. Users that are already members
// cannot be invited again.
func (s *Service) CreateInvitation(ctx context.Context, cmd CreateInvitation) (domain.Invitation, error) {
	var inv domain.Invitation
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.check(domain.ValidateEmail(cmd.Email))
		v.required("role_id", cmd.RoleID)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithAll(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if err := s.authorizer.Require(org, cmd.RequestedBy, domain.PermInvitationsManage); err != nil {
			return err
		}
		invitee, err := s.users.GetByEmail(ctx, cmd.Email)
		switch {
		case err == nil:
			if org.HasAccess(invitee.ID) {
				return fmt.Errorf("invite %s: %w", cmd.Email, domain.ErrAlreadyMember)
			}
		case !errors.Is(err, repository.ErrUserNotFound):
			return err
		}

		if inv, err = org.CreateInvitation(cmd.Email, cmd.RoleID); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return inv, err
}

// AcceptInvitation makes the requester a member. The requester must be a
// known user whose email is the invited address.
func (s *Service) AcceptInvitation(ctx context.Context, cmd AcceptInvitation) (domain.Member, error) {
	var member domain.Member
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("invitation_id", cmd.InvitationID)
		v.required("token", cmd.Token)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithAll(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		invitee, err := s.checkInvitee(ctx, org, cmd.InvitationID, cmd.RequestedBy)
		if err != nil {
			return err
		}
		if !invitee.IsActive() {
			return fmt.Errorf("invitee %s: %w", invitee.ID, ErrUserInactive)
		}
		if member, err = org.AcceptInvitation(cmd.InvitationID, cmd.Token, cmd.RequestedBy); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return member, err
}

func (s *Service) RejectInvitation(ctx context.Context, cmd RejectInvitation) (domain.Invitation, error) {
	var inv domain.Invitation
	err := s.instrument(ctx, cmd, cmd.OrganizationID, func(ctx context.Context) error {
		var v ValidationErrors
		v.required("organization_id", cmd.OrganizationID)
		v.required("invitation_id", cmd.InvitationID)
		v.required("token", cmd.Token)
		if err := v.err(); err != nil {
			return err
		}

		org, err := s.orgs.GetByIDWithInvitations(ctx, cmd.OrganizationID)
		if err != nil {
			return err
		}
		if _, err := s.checkInvitee(ctx, org, cmd.InvitationID, cmd.RequestedBy); err != nil {
			return err
		}
		if inv, err = org.RejectInvitation(cmd.InvitationID, cmd.Token); err != nil {
			return err
		}
		return s.save(ctx, org)
	})
	return inv, err
}

// checkInvitee verifies that userID exists and owns the invited address, and
// returns that user. An unknown invitation is left for the aggregate to
// report.
func (s *Service) checkInvitee(ctx context.Context, org *domain.Organization, invitationID, userID string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: invitee is not authenticated", domain.ErrForbidden)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	inv, ok := org.Invitation(invitationID)
	if ok && !strings.EqualFold(inv.Email, user.Email) {
		return nil, fmt.Errorf("%w: invitation %s was sent to another address", domain.ErrForbidden, invitationID)
	}
	return user, nil
}

// ======== internals ========

func (s *Service) ensureNameAvailable(ctx context.Context, name string) error {
	taken, err := s.orgs.ExistsByName(ctx, name)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("organization %q: %w", name, repository.ErrOrganizationNameTaken)
	}
	return nil
}

// save persists org and publishes what it raised.
func (s *Service) save(ctx context.Context, org *domain.Organization) error {
	if err := s.orgs.Update(ctx, org); err != nil {
		return err
	}
	s.publish(ctx, org.DrainEvents())
	return nil
}

// publish delivers committed events. Failures leave them pending in the
// outbox for the relay.
func (s *Service) publish(ctx context.Context, evts []domain.Event) {
	if s.publisher == nil || len(evts) == 0 {
		return
	}
	if err := s.publisher.Dispatch(ctx, evts...); err != nil {
		s.logger.WarnContext(ctx, "event dispatch failed, leaving for outbox relay", "error", err)
		return
	}
	if s.outbox == nil {
		return
	}
	ids := make([]string, len(evts))
	for i, e := range evts {
		ids[i] = e.EventID()
	}
	if err := s.outbox.MarkDispatched(ctx, ids); err != nil {
		s.logger.WarnContext(ctx, "mark events dispatched failed", "error", err)
	}
}

func (s *Service) instrument(ctx context.Context, cmd Command, orgID string, fn func(context.Context) error) error {
	name := cmd.CommandName()
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerOrganizationService, "organization."+name,
		attribute.String(telemetry.AttrCommand, name),
		attribute.String(telemetry.AttrOrganizationID, orgID),
	)
	defer span.End()

	err := fn(ctx)
	telemetry.RecordError(span, err)
	s.metrics.RecordCommand(ctx, name, float64(time.Since(start).Microseconds())/1000, err)
	if err != nil {
		s.logger.DebugContext(ctx, "command failed", "command", name, "organization_id", orgID, "error", err)
	}
	return err
}
