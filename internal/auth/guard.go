package auth

// Permission names a single capability.
type Permission string

// Permissions.
const (
	PermBookRead        Permission = "book:read"
	PermBookWrite       Permission = "book:write"
	PermAccountReadSelf Permission = "account:read_self"
	PermAccountManage   Permission = "account:manage"
	PermAuditRead       Permission = "audit:read"
)

// permissionRole is the lowest role granted each permission.
var permissionRole = map[Permission]Role{
	PermBookRead:        RolePatron,
	PermAccountReadSelf: RolePatron,
	PermBookWrite:       RoleStaff,
	PermAccountManage:   RoleStaff,
	PermAuditRead:       RoleStaff,
}

// Authorize checks p against the required role. A nil principal fails with
// KindUnauthenticated; a role below required fails with KindForbidden.
// An unknown required role is never satisfied.
func Authorize(p *Principal, required Role) error {
	if p == nil {
		return newError(KindUnauthenticated, nil)
	}
	if !p.Role.Satisfies(required) {
		return newError(KindForbidden, nil)
	}
	return nil
}

// Can checks p for a named permission. Unknown permissions are denied.
func Can(p *Principal, perm Permission) error {
	if p == nil {
		return newError(KindUnauthenticated, nil)
	}
	required, ok := permissionRole[perm]
	if !ok {
		return newError(KindForbidden, nil)
	}
	return Authorize(p, required)
}

// PermissionsForRole lists every permission role holds, in a stable order.
func PermissionsForRole(role Role) []Permission {
	all := []Permission{PermBookRead, PermBookWrite, PermAccountReadSelf, PermAccountManage, PermAuditRead}
	out := make([]Permission, 0, len(all))
	for _, perm := range all {
		if role.Satisfies(permissionRole[perm]) {
			out = append(out, perm)
		}
	}
	return out
}
