package organization

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleNameMatching controls how role names are compared for uniqueness.
type RoleNameMatching int

const (
	RoleNamesCaseSensitive RoleNameMatching = iota
	RoleNamesCaseInsensitive
)

type settings struct {
	now      func() time.Time
	newID    func() string
	tokens   TokenGenerator
	ttl      time.Duration
	matching RoleNameMatching
}

// Option configures an aggregate instance.
type Option func(*settings)

// WithClock overrides the time source used for timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithIDGenerator overrides how child entity and event IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) { s.newID = newID }
}

func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *settings) { s.tokens = g }
}

// WithInvitationTTL sets the validity window of invitations created through
// this instance. Non-positive values keep the default.
func WithInvitationTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithRoleNameMatching(m RoleNameMatching) Option {
	return func(s *settings) { s.matching = m }
}

// storageClock is the default clock. Timestamps are cut to microseconds, the
// precision both PostgreSQL and SQLite keep, so reloaded instants compare
// equal to the in-memory ones.
func storageClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newSettings(opts []Option) settings {
	s := settings{
		now:    storageClock,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		tokens: func() (string, error) { return GenerateToken(DefaultTokenBytes) },
		ttl:    DefaultInvitationTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) sameRoleName(a, b string) bool {
	if s.matching == RoleNamesCaseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}
