package organization

import (
	"crypto/subtle"
	"time"
)

// InvitationStatus is the stored lifecycle state of an invitation. Expiry is
// never stored; see Invitation.IsExpired.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "Pending"
	InvitationAccepted InvitationStatus = "Accepted"
	InvitationRejected InvitationStatus = "Rejected"

	// InvitationExpired is only reported by DisplayStatus.
	InvitationExpired InvitationStatus = "Expired"
)

// DefaultInvitationTTL is the validity window of a new invitation.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invitation is a time-limited, single-use offer of membership.
type Invitation struct {
	ID             string
	OrganizationID string
	Email          string
	Token          string
	RoleID         string
	Status         InvitationStatus
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether the invitation can no longer be used. The expiry
// instant itself already counts as expired.
func (i Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsPending reports whether the invitation is still actionable.
func (i Invitation) IsPending(now time.Time) bool {
	return i.Status == InvitationPending && !i.IsExpired(now)
}

// DisplayStatus folds expiry into the status for read models.
func (i Invitation) DisplayStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.IsExpired(now) {
		return InvitationExpired
	}
	return i.Status
}

// MatchesToken compares in constant time.
func (i Invitation) MatchesToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(i.Token), []byte(token)) == 1
}

// checkActionable applies the shared preconditions of accept and reject.
func (i Invitation) checkActionable(token string, now time.Time) error {
	if !i.MatchesToken(token) {
		return ErrInvalidToken
	}
	if i.Status != InvitationPending {
		return ErrInvitationNotPending
	}
	if i.IsExpired(now) {
		return ErrInvitationExpired
	}
	return nil
}
