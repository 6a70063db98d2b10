package organization

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them,
// so callers can map failures with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

var (
	ErrOrganizationNotFound = fmt.Errorf("organization %w", ErrNotFound)
	ErrMemberNotFound       = fmt.Errorf("member %w", ErrNotFound)
	ErrRoleNotFound         = fmt.Errorf("role %w", ErrNotFound)
	ErrInvitationNotFound   = fmt.Errorf("invitation %w", ErrNotFound)
	ErrRoleNotAssigned      = fmt.Errorf("role assignment %w", ErrNotFound)

	ErrLastRole                = fmt.Errorf("%w: a member must keep at least one role", ErrConflict)
	ErrSystemRole              = fmt.Errorf("%w: system roles cannot be renamed or deleted", ErrConflict)
	ErrRoleInUse               = fmt.Errorf("%w: role is still referenced", ErrConflict)
	ErrDuplicateRoleName       = fmt.Errorf("%w: role name already exists in this organization", ErrConflict)
	ErrOwnerRemoval            = fmt.Errorf("%w: the owner cannot be removed", ErrConflict)
	ErrInvitationNotPending    = fmt.Errorf("%w: invitation is no longer pending", ErrConflict)
	ErrInvitationExpired       = fmt.Errorf("%w: invitation has expired", ErrConflict)
	ErrPendingInvitationExists = fmt.Errorf("%w: a pending invitation already exists for this email", ErrConflict)
	ErrOrganizationInactive    = fmt.Errorf("%w: organization is inactive", ErrConflict)
	ErrAlreadyMember           = fmt.Errorf("%w: user is already a member", ErrConflict)

	ErrInvalidToken = fmt.Errorf("%w: invitation token does not match", ErrForbidden)
)

// Programming errors. They indicate a caller bug rather than a business rule
// and deliberately wrap none of the kinds above.
var (
	ErrRolesNotInitialized = errors.New("organization roles are not initialized")
	ErrSubgraphNotLoaded   = errors.New("organization subgraph not loaded")
)

// FieldError reports one invalid input field. It matches ErrValidation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notLoaded(s Subgraph) error {
	return fmt.Errorf("%w: %s", ErrSubgraphNotLoaded, s)
}
