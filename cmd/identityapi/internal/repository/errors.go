package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

var (
	// ErrConcurrentModification means another writer saved the organization
	// after it was loaded.
	ErrConcurrentModification = fmt.Errorf("%w: organization was modified concurrently", organization.ErrConflict)

	ErrOrganizationNameTaken = fmt.Errorf("%w: organization name already taken", organization.ErrConflict)
	ErrEmailTaken            = fmt.Errorf("%w: email already registered", organization.ErrConflict)
	ErrUserNotFound          = fmt.Errorf("user %w", organization.ErrNotFound)
	ErrRoleReferenced        = fmt.Errorf("%w: role is still referenced", organization.ErrConflict)
)

// isUniqueViolation recognises unique constraint failures from both drivers.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation recognises foreign key failures from both drivers.
func isForeignKeyViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
