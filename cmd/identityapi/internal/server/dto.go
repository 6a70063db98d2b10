package server

import (
	"time"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// updateUserRequest leaves absent fields untouched.
type updateUserRequest struct {
	DisplayName  *string `json:"display_name"`
	PhoneNumber  *string `json:"phone_number"`
	Address      *string `json:"address"`
	ProfileImage *string `json:"profile_image"`
}

type createOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LogoURL     string `json:"logo_url"`
	BannerURL   string `json:"banner_url"`
}

type updateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateImageRequest struct {
	URL string `json:"url"`
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type createInvitationRequest struct {
	Email  string `json:"email"`
	RoleID string `json:"role_id"`
}

type invitationTokenRequest struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name,omitempty"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	Address       string     `json:"address,omitempty"`
	ProfileImage  string     `json:"profile_image,omitempty"`
	IsActive      bool       `json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type organizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	LogoURL     string    `json:"logo_url,omitempty"`
	BannerURL   string    `json:"banner_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	Version     int       `json:"version"`
	MemberCount *int      `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type roleResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type memberResponse struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	RoleIDs  []string  `json:"role_ids"`
	JoinedAt time.Time `json:"joined_at"`
}

// invitationCreatedResponse is the only response that carries the token.
type invitationCreatedResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	RoleID    string    `json:"role_id"`
	Token     string    `json:"token"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type invitationStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type permissionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type organizationPage struct {
	Items    []organizationResponse `json:"items"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
	Total    int                    `json:"total"`
}

type permissionPage struct {
	Items    []permissionResponse `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int                  `json:"total"`
}

func toUser(u *models.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PhoneNumber:   u.PhoneNumber,
		Address:       u.Address,
		ProfileImage:  u.ProfileImage,
		IsActive:      u.IsActive(),
		DeactivatedAt: u.DeactivatedAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func toOrganization(org *domain.Organization) organizationResponse {
	resp := organizationResponse{
		ID:          org.ID(),
		Name:        org.Name(),
		Description: org.Description(),
		OwnerID:     org.OwnerID(),
		LogoURL:     org.LogoURL(),
		BannerURL:   org.BannerURL(),
		IsActive:    org.IsActive(),
		Version:     org.Version(),
		CreatedAt:   org.CreatedAt(),
		UpdatedAt:   org.UpdatedAt(),
	}
	if org.Loaded().Has(domain.SubgraphMembers) {
		n := len(org.Members())
		resp.MemberCount = &n
	}
	return resp
}

func toRole(r domain.Role) roleResponse {
	perms := r.PermissionNames
	if perms == nil {
		perms = []string{}
	}
	return roleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		Permissions: perms,
		IsSystem:    r.IsSystem(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toRoles(roles []domain.Role) []roleResponse {
	out := make([]roleResponse, len(roles))
	for i, r := range roles {
		out[i] = toRole(r)
	}
	return out
}

func toMember(m domain.Member) memberResponse {
	return memberResponse{ID: m.ID, UserID: m.UserID, RoleIDs: m.RoleIDs, JoinedAt: m.JoinedAt}
}
