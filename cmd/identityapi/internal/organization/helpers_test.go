package organization

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *testClock) Set(t time.Time)         { c.now = t }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}

func sequentialTokens() TokenGenerator {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("token-%04d", n), nil
	}
}

func testOptions(clock *testClock) []Option {
	return []Option{
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithTokenGenerator(sequentialTokens()),
	}
}

// newInitializedOrg returns "Acme" owned by u-owner with system roles and the
// owner membership in place, and an empty outbox.
func newInitializedOrg(t *testing.T, clock *testClock, opts ...Option) *Organization {
	t.Helper()
	org, err := Create(CreateParams{Name: "Acme", OwnerID: "u-owner"}, append(testOptions(clock), opts...)...)
	require.NoError(t, err)
	require.NoError(t, org.InitializeRoles())
	require.NoError(t, org.InitializeOwner())
	org.DrainEvents()
	return org
}

func roleID(t *testing.T, org *Organization, name string) string {
	t.Helper()
	r, ok := org.RoleByName(name)
	require.True(t, ok, "role %s missing", name)
	return r.ID
}

func eventTypes(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

// requireInvariants checks the cross-entity rules that must hold after every
// operation.
func requireInvariants(t *testing.T, org *Organization) {
	t.Helper()

	users := map[string]bool{}
	for _, m := range org.Members() {
		require.False(t, users[m.UserID], "duplicate member %s", m.UserID)
		users[m.UserID] = true
		require.NotEmpty(t, m.RoleIDs, "member %s has no roles", m.UserID)
		for _, id := range m.RoleIDs {
			_, ok := org.Role(id)
			require.True(t, ok, "member %s references missing role %s", m.UserID, id)
		}
	}

	names := map[string]bool{}
	for _, r := range org.Roles() {
		require.False(t, names[r.Name], "duplicate role name %s", r.Name)
		names[r.Name] = true
	}

	pending := map[string]bool{}
	now := org.Now()
	for _, inv := range org.Invitations() {
		_, ok := org.Role(inv.RoleID)
		require.True(t, ok, "invitation %s references missing role %s", inv.ID, inv.RoleID)
		if inv.IsPending(now) {
			require.False(t, pending[inv.Email], "two pending invitations for %s", inv.Email)
			pending[inv.Email] = true
		}
	}
}
