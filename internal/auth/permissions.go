package auth

import "strings"

// Wildcard matches any resource or action.
const Wildcard = "*"

// RoleAdmin is the seeded superuser role.
const RoleAdmin = "admin"

// Permission keys checked by the HTTP layer.
const (
	PermUsersRead         = "users:read"
	PermUsersCreate       = "users:create"
	PermUsersUpdate       = "users:update"
	PermUsersDelete       = "users:delete"
	PermRolesRead         = "roles:read"
	PermRolesCreate       = "roles:create"
	PermRolesUpdate       = "roles:update"
	PermRolesDelete       = "roles:delete"
	PermPermissionsRead   = "permissions:read"
	PermPermissionsManage = "permissions:manage"
	PermTeamsRead         = "teams:read"
	PermTeamsCreate       = "teams:create"
	PermTeamsUpdate       = "teams:update"
	PermTeamsDelete       = "teams:delete"
	PermDocumentsRead     = "documents:read"
	PermDocumentsCreate   = "documents:create"
	PermDocumentsUpdate   = "documents:update"
	PermDocumentsDelete   = "documents:delete"
)

// MatchPermission reports whether granted satisfies required. Both are in
// "resource:action" form and either segment of granted may be a wildcard.
// A bare "*" is treated as "*:*".
func MatchPermission(granted, required string) bool {
	gRes, gAct := splitPermission(granted)
	rRes, rAct := splitPermission(required)
	if gRes == "" || rRes == "" {
		return false
	}
	return segmentMatches(gRes, rRes) && segmentMatches(gAct, rAct)
}

// HasPermission reports whether any of granted satisfies required.
func HasPermission(granted []string, required string) bool {
	for _, g := range granted {
		if MatchPermission(g, required) {
			return true
		}
	}
	return false
}

func splitPermission(key string) (resource, action string) {
	key = strings.TrimSpace(key)
	if key == Wildcard {
		return Wildcard, Wildcard
	}
	resource, action, ok := strings.Cut(key, ":")
	if !ok || action == "" {
		return "", ""
	}
	return resource, action
}

func segmentMatches(granted, required string) bool {
	return granted == Wildcard || granted == required
}
