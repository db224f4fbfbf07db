package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halolight/halolight-api-go/internal/audit"
	"github.com/halolight/halolight-api-go/internal/auth"
)

type createUserRequest struct {
	Email    string          `json:"email"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Name     string          `json:"name"`
	Phone    string          `json:"phone"`
	Status   auth.UserStatus `json:"status"`
	RoleIDs  []string        `json:"roleIds"`
}

type updateUserRequest struct {
	Email    *string          `json:"email"`
	Username *string          `json:"username"`
	Password *string          `json:"password"`
	Name     *string          `json:"name"`
	Phone    *string          `json:"phone"`
	Avatar   *string          `json:"avatar"`
	Status   *auth.UserStatus `json:"status"`
}

type updateStatusRequest struct {
	Status auth.UserStatus `json:"status"`
}

type assignRoleRequest struct {
	RoleID string `json:"roleId"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Label       *string `json:"label"`
	Description *string `json:"description"`
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

type createPermissionRequest struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := a.admin.ListUsers(r.Context(), auth.UserQuery{
		Search:   q.Get("search"),
		Status:   auth.UserStatus(q.Get("status")),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.admin.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !bind(w, r, &req) {
		return
	}
	user, err := a.admin.CreateUser(r.Context(), auth.UserInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Status:   req.Status,
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{"target": user.ID, "email": user.Email})
	w.Header().Set("Location", fmt.Sprintf("/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !bind(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	user, err := a.admin.UpdateUser(r.Context(), identity(r).UserID, id, auth.UserUpdate{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Avatar:   req.Avatar,
		Status:   req.Status,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.update", map[string]any{"target": id})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !bind(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	user, err := a.admin.UpdateStatus(r.Context(), identity(r).UserID, id, req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.status", map[string]any{"target": id, "status": string(user.Status)})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.admin.DeleteUser(r.Context(), identity(r).UserID, id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{"target": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !bind(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.admin.AssignRole(r.Context(), id, req.RoleID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role.assign", map[string]any{"target": id, "role_id": req.RoleID})
	a.respondUser(w, r, id)
}

func (a *API) unassignRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	roleID := chi.URLParam(r, "roleID")
	if err := a.admin.UnassignRole(r.Context(), id, roleID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role.unassign", map[string]any{"target": id, "role_id": roleID})
	a.respondUser(w, r, id)
}

func (a *API) respondUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := a.admin.GetUser(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.admin.ListRoles(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.admin.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !bind(w, r, &req) {
		return
	}
	role, err := a.admin.CreateRole(r.Context(), req.Name, req.Label, req.Description)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.create", map[string]any{"role_id": role.ID, "name": role.Name})
	w.Header().Set("Location", fmt.Sprintf("/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !bind(w, r, &req) {
		return
	}
	role, err := a.admin.UpdateRole(r.Context(), chi.URLParam(r, "id"), auth.RoleUpdate{
		Label:       req.Label,
		Description: req.Description,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.admin.DeleteRole(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.delete", map[string]any{"role_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if !bind(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	role, err := a.admin.SetRolePermissions(r.Context(), id, req.PermissionIDs)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permissions", map[string]any{
		"role_id":     id,
		"permissions": len(role.Permissions),
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.admin.ListPermissions(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !bind(w, r, &req) {
		return
	}
	perm, err := a.admin.CreatePermission(r.Context(), req.Resource, req.Action, req.Description)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.create", map[string]any{"permission": perm.Key()})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) deletePermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.admin.DeletePermission(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.delete", map[string]any{"permission_id": id})
	w.WriteHeader(http.StatusNoContent)
}
