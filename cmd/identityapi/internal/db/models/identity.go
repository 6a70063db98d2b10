package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the minimal identity record an organization member refers to.
// Credentials live with the identity provider.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string     `bun:"id,pk"`
	Email         string     `bun:"email,notnull,unique"`
	DisplayName   string     `bun:"display_name"`
	PhoneNumber   string     `bun:"phone_number,notnull,default:''"`
	Address       string     `bun:"address,notnull,default:''"`
	ProfileImage  string     `bun:"profile_image,notnull,default:''"`
	DeactivatedAt *time.Time `bun:"deactivated_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// IsActive reports whether the user may create organizations and accept
// invitations.
func (u *User) IsActive() bool { return u.DeactivatedAt == nil }

// Organization is the aggregate root row. Version increments on every save.
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:o"`

	ID          string    `bun:"id,pk,type:uuid"`
	Name        string    `bun:"name,notnull,unique"`
	Description string    `bun:"description,notnull,default:''"`
	OwnerID     string    `bun:"owner_id,notnull"`
	LogoURL     string    `bun:"logo_url,notnull,default:''"`
	BannerURL   string    `bun:"banner_url,notnull,default:''"`
	IsActive    bool      `bun:"is_active,notnull,default:true"`
	Version     int       `bun:"version,notnull,default:1"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type Member struct {
	bun.BaseModel `bun:"table:members,alias:m"`

	ID             string    `bun:"id,pk,type:uuid"`
	OrganizationID string    `bun:"organization_id,notnull,type:uuid,unique:uq_members_org_user"`
	UserID         string    `bun:"user_id,notnull,unique:uq_members_org_user"`
	JoinedAt       time.Time `bun:"joined_at,notnull,default:current_timestamp"`

	Roles []MemberRole `bun:"rel:has-many,join:id=member_id"`
}

type MemberRole struct {
	bun.BaseModel `bun:"table:member_roles,alias:mr"`

	MemberID string `bun:"member_id,pk,type:uuid"`
	RoleID   string `bun:"role_id,pk,type:uuid"`
	Position int    `bun:"position,notnull,default:0"`
}

type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID             string    `bun:"id,pk,type:uuid"`
	OrganizationID string    `bun:"organization_id,notnull,type:uuid,unique:uq_roles_org_name"`
	Name           string    `bun:"name,notnull,unique:uq_roles_org_name"`
	Description    string    `bun:"description,notnull,default:''"`
	Color          string    `bun:"color,notnull,default:''"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	Permissions []RolePermission `bun:"rel:has-many,join:id=role_id"`
}

type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID         string `bun:"role_id,pk,type:uuid"`
	PermissionName string `bun:"permission_name,pk"`
}

// Permission mirrors the in-process catalog so it can be listed and joined
// in SQL. It is seeded by migration.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	Name        string `bun:"name,pk"`
	Description string `bun:"description,notnull,default:''"`
	Category    string `bun:"category,notnull"`
}

type Invitation struct {
	bun.BaseModel `bun:"table:invitations,alias:i"`

	ID             string    `bun:"id,pk,type:uuid"`
	OrganizationID string    `bun:"organization_id,notnull,type:uuid"`
	Email          string    `bun:"email,notnull"`
	Token          string    `bun:"token,notnull,unique,type:varchar(64)"`
	RoleID         string    `bun:"role_id,notnull,type:uuid"`
	Status         string    `bun:"status,notnull"`
	ExpiresAt      time.Time `bun:"expires_at,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
