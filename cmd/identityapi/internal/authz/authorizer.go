// Package authz answers "may this user do that in this organization" by
// compiling an organization's roles and member assignments into a Casbin
// RBAC-with-domains enforcer.
package authz

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

//go:embed model.conf
var casbinModelContent string

// DefaultCacheSize is the number of compiled enforcers kept when none is
// configured.
const DefaultCacheSize = 256

// Authorizer evaluates permissions against organization aggregates. Compiled
// enforcers are cached per organization version, so a saved change is seen
// as soon as the newer version is loaded.
type Authorizer struct {
	enforcers *lru.Cache[string, *casbin.Enforcer]
}

// New creates an Authorizer that keeps up to cacheSize enforcers.
func New(cacheSize int) (*Authorizer, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *casbin.Enforcer](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create enforcer cache: %w", err)
	}
	return &Authorizer{enforcers: cache}, nil
}

// Can reports whether userID holds permission in org. The owner is always
// allowed. The aggregate must have members and roles loaded.
func (a *Authorizer) Can(org *organization.Organization, userID, permission string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if userID == org.OwnerID() {
		return true, nil
	}
	if !org.Loaded().Has(organization.SubgraphMembers | organization.SubgraphRoles) {
		return false, fmt.Errorf("authorize %s: %w", permission, organization.ErrSubgraphNotLoaded)
	}

	enforcer, err := a.enforcer(org)
	if err != nil {
		return false, err
	}
	ok, err := enforcer.Enforce(UserID(userID), org.ID(), permission)
	if err != nil {
		return false, fmt.Errorf("enforce %s: %w", permission, err)
	}
	return ok, nil
}

// Require is Can that reports a denial as organization.ErrForbidden.
func (a *Authorizer) Require(org *organization.Organization, userID, permission string) error {
	ok, err := a.Can(org, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires %s", organization.ErrForbidden, userID, permission)
	}
	return nil
}

// Purge drops every cached enforcer.
func (a *Authorizer) Purge() {
	a.enforcers.Purge()
}

// Len returns the number of cached enforcers.
func (a *Authorizer) Len() int {
	return a.enforcers.Len()
}

func (a *Authorizer) enforcer(org *organization.Organization) (*casbin.Enforcer, error) {
	key := cacheKey(org)
	if e, ok := a.enforcers.Get(key); ok {
		return e, nil
	}
	e, err := Compile(org)
	if err != nil {
		return nil, err
	}
	a.enforcers.Add(key, e)
	return e, nil
}

func cacheKey(org *organization.Organization) string {
	return org.ID() + "@" + strconv.Itoa(org.Version())
}

// Compile builds an enforcer holding one policy per role permission and one
// grouping per member role assignment.
func Compile(org *organization.Organization) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	domain := org.ID()
	var policies [][]string
	for _, role := range org.Roles() {
		for _, perm := range role.PermissionNames {
			policies = append(policies, []string{RoleID(role.ID), domain, perm})
		}
	}
	var groupings [][]string
	for _, member := range org.Members() {
		for _, roleID := range member.RoleIDs {
			groupings = append(groupings, []string{UserID(member.UserID), RoleID(roleID), domain})
		}
	}

	if len(policies) > 0 {
		if _, err := enforcer.AddPolicies(policies); err != nil {
			return nil, fmt.Errorf("add role policies: %w", err)
		}
	}
	if len(groupings) > 0 {
		if _, err := enforcer.AddGroupingPolicies(groupings); err != nil {
			return nil, fmt.Errorf("add member roles: %w", err)
		}
	}
	return enforcer, nil
}
