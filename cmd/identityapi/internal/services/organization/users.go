package organization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/bunx"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/events"
	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/repository"
)

// ErrUserInactive rejects commands issued by a deactivated user.
var ErrUserInactive = fmt.Errorf("%w: user is deactivated", domain.ErrForbidden)

const (
	maxDisplayNameLength = 100
	maxPhoneNumberLength = 32
	maxAddressLength     = 255
)

// UserService registers the users organizations refer to and manages their
// profile and activation state.
type UserService struct {
	users     repository.UserRepository
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{
		users:  users,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// WithPublisher delivers user events in-process after each change.
func (s *UserService) WithPublisher(p events.Publisher) *UserService {
	s.publisher = p
	return s
}

func (s *UserService) WithLogger(logger *slog.Logger) *UserService {
	s.logger = logger
	return s
}

// CreateUser validates and stores a user. An empty id is generated.
func (s *UserService) CreateUser(ctx context.Context, id, email, displayName string) (*models.User, error) {
	var v ValidationErrors
	email = strings.ToLower(strings.TrimSpace(email))
	v.check(domain.ValidateEmail(email))
	if len(displayName) > maxDisplayNameLength {
		v.add("display_name", fmt.Sprintf("must be at most %d characters", maxDisplayNameLength))
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	user := &models.User{ID: strings.TrimSpace(id), Email: email, DisplayName: displayName}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateUser changes profile fields of the requester. Nil fields keep their
// current value and an empty string clears one.
type UpdateUser struct {
	UserID       string
	RequestedBy  string
	DisplayName  *string
	PhoneNumber  *string
	Address      *string
	ProfileImage *string
}

func (s *UserService) UpdateUser(ctx context.Context, cmd UpdateUser) (*models.User, error) {
	var v ValidationErrors
	v.required("user_id", cmd.UserID)
	if cmd.DisplayName != nil && len(*cmd.DisplayName) > maxDisplayNameLength {
		v.add("display_name", fmt.Sprintf("must be at most %d characters", maxDisplayNameLength))
	}
	if cmd.PhoneNumber != nil && len(*cmd.PhoneNumber) > maxPhoneNumberLength {
		v.add("phone_number", fmt.Sprintf("must be at most %d characters", maxPhoneNumberLength))
	}
	if cmd.Address != nil && len(*cmd.Address) > maxAddressLength {
		v.add("address", fmt.Sprintf("must be at most %d characters", maxAddressLength))
	}
	if cmd.ProfileImage != nil {
		v.check(domain.ValidateImageURL("profile_image", *cmd.ProfileImage))
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	user, err := s.loadSelf(ctx, cmd.UserID, cmd.RequestedBy)
	if err != nil {
		return nil, err
	}
	changed := assign(&user.DisplayName, cmd.DisplayName)
	changed = assign(&user.PhoneNumber, cmd.PhoneNumber) || changed
	changed = assign(&user.Address, cmd.Address) || changed
	changed = assign(&user.ProfileImage, cmd.ProfileImage) || changed
	if !changed {
		return user, nil
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.publish(ctx, &domain.UserUpdated{EventMeta: s.meta(), UserID: user.ID, Email: user.Email})
	return user, nil
}

// DeactivateUser marks the requester inactive. Deactivating an inactive user
// is a no-op and raises no event.
func (s *UserService) DeactivateUser(ctx context.Context, userID, requestedBy string) (*models.User, error) {
	user, err := s.loadSelf(ctx, userID, requestedBy)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return user, nil
	}
	at := s.now()
	user.DeactivatedAt = &at
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.publish(ctx, &domain.UserDeactivated{EventMeta: s.meta(), UserID: user.ID, Email: user.Email})
	return user, nil
}

func (s *UserService) ActivateUser(ctx context.Context, userID, requestedBy string) (*models.User, error) {
	user, err := s.loadSelf(ctx, userID, requestedBy)
	if err != nil {
		return nil, err
	}
	if user.IsActive() {
		return user, nil
	}
	user.DeactivatedAt = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.publish(ctx, &domain.UserActivated{EventMeta: s.meta(), UserID: user.ID, Email: user.Email})
	return user, nil
}

// loadSelf loads userID on behalf of requestedBy. Users manage only their own
// record.
func (s *UserService) loadSelf(ctx context.Context, userID, requestedBy string) (*models.User, error) {
	if strings.TrimSpace(requestedBy) == "" {
		return nil, fmt.Errorf("%w: user is not authenticated", domain.ErrForbidden)
	}
	if userID != requestedBy {
		return nil, fmt.Errorf("%w: user %s cannot change user %s", domain.ErrForbidden, requestedBy, userID)
	}
	return s.users.GetByID(ctx, userID)
}

func (s *UserService) meta() domain.EventMeta {
	return domain.EventMeta{ID: bunx.NewUUIDv7(), At: s.now()}
}

// publish delivers a user event. User events skip the outbox, so a failed
// delivery is only logged.
func (s *UserService) publish(ctx context.Context, e domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Dispatch(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "user event dispatch failed", "type", e.EventType(), "event_id", e.EventID(), "error", err)
	}
}

func assign(dst *string, v *string) bool {
	if v == nil || *dst == *v {
		return false
	}
	*dst = *v
	return true
}

// requireActive loads userID and fails with ErrUserInactive when it was
// deactivated.
func requireActive(ctx context.Context, users repository.UserRepository, userID string) (*models.User, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("user %s: %w", userID, ErrUserInactive)
	}
	return user, nil
}
