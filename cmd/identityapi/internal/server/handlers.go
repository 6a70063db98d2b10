package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	orgsvc "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/services/organization"
)

// handlers adapts HTTP requests to the organization and user services.
type handlers struct {
	svc     *orgsvc.Service
	users   *orgsvc.UserService
	schemas *SchemaSet
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.schemas.Decode(r, schemaCreateUser, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.users.CreateUser(r.Context(), CallerID(r.Context()), req.Email, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(user))
}

func (h *handlers) getMe(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, CallerID(r.Context()))
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, chi.URLParam(r, "userID"))
}

func (h *handlers) writeUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (h *handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := h.schemas.Decode(r, schemaUpdateUser, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller := CallerID(r.Context())
	user, err := h.users.UpdateUser(r.Context(), orgsvc.UpdateUser{
		UserID:       caller,
		RequestedBy:  caller,
		DisplayName:  req.DisplayName,
		PhoneNumber:  req.PhoneNumber,
		Address:      req.Address,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (h *handlers) deactivateMe(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	user, err := h.users.DeactivateUser(r.Context(), caller, caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (h *handlers) activateMe(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	user, err := h.users.ActivateUser(r.Context(), caller, caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (h *handlers) listMyOrganizations(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orgs, total, err := h.svc.ListUserOrganizations(r.Context(), CallerID(r.Context()), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]organizationResponse, len(orgs))
	for i, org := range orgs {
		items[i] = toOrganization(org)
	}
	writeJSON(w, http.StatusOK, organizationPage{Items: items, Page: page, PageSize: pageSize, Total: total})
}

func (h *handlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perms, total, err := h.svc.ListPermissions(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]permissionResponse, len(perms))
	for i, p := range perms {
		items[i] = permissionResponse{Name: p.Name, Description: p.Description, Category: string(p.Category)}
	}
	writeJSON(w, http.StatusOK, permissionPage{Items: items, Page: page, PageSize: pageSize, Total: total})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &requestError{msg: key + " must be a positive integer"}
	}
	return n, nil
}

func (h *handlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := h.schemas.Decode(r, schemaCreateOrganization, &req); err != nil {
		writeError(w, r, err)
		return
	}
	org, err := h.svc.CreateOrganization(r.Context(), orgsvc.CreateOrganization{
		RequestedBy: CallerID(r.Context()),
		Name:        req.Name,
		Description: req.Description,
		LogoURL:     req.LogoURL,
		BannerURL:   req.BannerURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrganization(org))
}

func (h *handlers) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.svc.GetOrganization(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganization(org))
}

func (h *handlers) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req updateOrganizationRequest
	if err := h.schemas.Decode(r, schemaUpdateOrganization, &req); err != nil {
		writeError(w, r, err)
		return
	}
	org, err := h.svc.UpdateOrganization(r.Context(), orgsvc.UpdateOrganization{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		Name:           req.Name,
		Description:    req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganization(org))
}

func (h *handlers) updateLogo(w http.ResponseWriter, r *http.Request) {
	var req updateImageRequest
	if err := h.schemas.Decode(r, schemaUpdateImage, &req); err != nil {
		writeError(w, r, err)
		return
	}
	org, err := h.svc.UpdateLogo(r.Context(), orgsvc.UpdateLogo{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		URL:            req.URL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganization(org))
}

func (h *handlers) updateBanner(w http.ResponseWriter, r *http.Request) {
	var req updateImageRequest
	if err := h.schemas.Decode(r, schemaUpdateImage, &req); err != nil {
		writeError(w, r, err)
		return
	}
	org, err := h.svc.UpdateBanner(r.Context(), orgsvc.UpdateBanner{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		URL:            req.URL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganization(org))
}

func (h *handlers) deactivateOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.svc.DeactivateOrganization(r.Context(), orgsvc.DeactivateOrganization{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganization(org))
}

func (h *handlers) activateOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.svc.ActivateOrganization(r.Context(), orgsvc.ActivateOrganization{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganization(org))
}

func (h *handlers) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveMember(r.Context(), orgsvc.RemoveMember{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		UserID:         chi.URLParam(r, "userID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getMemberRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.GetMemberRoles(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoles(roles))
}

func (h *handlers) assignRole(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.AssignRole(r.Context(), orgsvc.AssignRole{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		UserID:         chi.URLParam(r, "userID"),
		RoleID:         chi.URLParam(r, "roleID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMember(m))
}

func (h *handlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.RevokeRole(r.Context(), orgsvc.RevokeRole{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		UserID:         chi.URLParam(r, "userID"),
		RoleID:         chi.URLParam(r, "roleID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMember(m))
}

func (h *handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.ListRoles(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoles(roles))
}

func (h *handlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := h.schemas.Decode(r, schemaRole, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.svc.CreateRole(r.Context(), orgsvc.CreateRole{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		Name:           req.Name,
		Description:    req.Description,
		Color:          req.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRole(role))
}

func (h *handlers) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.svc.GetRole(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"), chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRole(role))
}

func (h *handlers) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := h.schemas.Decode(r, schemaRole, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.svc.UpdateRole(r.Context(), orgsvc.UpdateRole{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		RoleID:         chi.URLParam(r, "roleID"),
		Name:           req.Name,
		Description:    req.Description,
		Color:          req.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRole(role))
}

func (h *handlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteRole(r.Context(), orgsvc.DeleteRole{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		RoleID:         chi.URLParam(r, "roleID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if err := h.schemas.Decode(r, schemaRolePermissions, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.svc.UpdateRolePermissions(r.Context(), orgsvc.UpdateRolePermissions{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		RoleID:         chi.URLParam(r, "roleID"),
		Permissions:    req.Permissions,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRole(role))
}

func (h *handlers) listInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.svc.ListInvitations(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *handlers) createInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if err := h.schemas.Decode(r, schemaCreateInvitation, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.CreateInvitation(r.Context(), orgsvc.CreateInvitation{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		Email:          req.Email,
		RoleID:         req.RoleID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitationCreatedResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		RoleID:    inv.RoleID,
		Token:     inv.Token,
		Status:    string(inv.Status),
		ExpiresAt: inv.ExpiresAt,
	})
}

func (h *handlers) getInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetInvitation(r.Context(), CallerID(r.Context()), chi.URLParam(r, "orgID"), chi.URLParam(r, "invitationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *handlers) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req invitationTokenRequest
	if err := h.schemas.Decode(r, schemaInvitationToken, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.svc.AcceptInvitation(r.Context(), orgsvc.AcceptInvitation{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		InvitationID:   chi.URLParam(r, "invitationID"),
		Token:          req.Token,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMember(m))
}

func (h *handlers) rejectInvitation(w http.ResponseWriter, r *http.Request) {
	var req invitationTokenRequest
	if err := h.schemas.Decode(r, schemaInvitationToken, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.RejectInvitation(r.Context(), orgsvc.RejectInvitation{
		RequestedBy:    CallerID(r.Context()),
		OrganizationID: chi.URLParam(r, "orgID"),
		InvitationID:   chi.URLParam(r, "invitationID"),
		Token:          req.Token,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationStatusResponse{ID: inv.ID, Status: string(inv.Status)})
}

