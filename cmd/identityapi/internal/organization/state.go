package organization

import (
	"strings"
	"time"
)

// Subgraph names the child collections of an aggregate instance that were
// loaded from storage.
type Subgraph uint8

const (
	SubgraphMembers Subgraph = 1 << iota
	SubgraphRoles
	SubgraphInvitations

	SubgraphNone Subgraph = 0
	SubgraphAll           = SubgraphMembers | SubgraphRoles | SubgraphInvitations
)

func (s Subgraph) Has(other Subgraph) bool {
	return s&other == other
}

func (s Subgraph) String() string {
	if s == SubgraphNone {
		return "none"
	}
	var parts []string
	if s.Has(SubgraphMembers) {
		parts = append(parts, "members")
	}
	if s.Has(SubgraphRoles) {
		parts = append(parts, "roles")
	}
	if s.Has(SubgraphInvitations) {
		parts = append(parts, "invitations")
	}
	return strings.Join(parts, "+")
}

// State is the persisted shape of an aggregate. Repositories build it from
// storage and hand it to Restore; Snapshot produces it for saving.
type State struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	LogoURL     string
	BannerURL   string
	IsActive    bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Members     []Member
	Roles       []Role
	Invitations []Invitation

	// Loaded tells which of the collections above are complete.
	Loaded Subgraph
}

// Restore rebuilds an aggregate from storage. Collections not flagged in
// s.Loaded are ignored.
func Restore(s State, opts ...Option) *Organization {
	o := &Organization{
		id:          s.ID,
		name:        s.Name,
		description: s.Description,
		ownerID:     s.OwnerID,
		logoURL:     s.LogoURL,
		bannerURL:   s.BannerURL,
		isActive:    s.IsActive,
		version:     s.Version,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
		loaded:      s.Loaded,
		settings:    newSettings(opts),
	}
	if s.Loaded.Has(SubgraphMembers) {
		o.members = cloneMembers(s.Members)
	}
	if s.Loaded.Has(SubgraphRoles) {
		o.roles = cloneRoles(s.Roles)
	}
	if s.Loaded.Has(SubgraphInvitations) {
		o.invitations = append([]Invitation(nil), s.Invitations...)
	}
	return o
}

// Snapshot returns a deep copy of the aggregate state.
func (o *Organization) Snapshot() State {
	return State{
		ID:          o.id,
		Name:        o.name,
		Description: o.description,
		OwnerID:     o.ownerID,
		LogoURL:     o.logoURL,
		BannerURL:   o.bannerURL,
		IsActive:    o.isActive,
		Version:     o.version,
		CreatedAt:   o.createdAt,
		UpdatedAt:   o.updatedAt,
		Members:     o.Members(),
		Roles:       o.Roles(),
		Invitations: o.Invitations(),
		Loaded:      o.loaded,
	}
}

// Persisted records the version assigned by a successful save.
func (o *Organization) Persisted(version int) {
	o.version = version
}

func cloneMembers(in []Member) []Member {
	out := make([]Member, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}

func cloneRoles(in []Role) []Role {
	out := make([]Role, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}
