package shared

// Core platform authorities. Names are stored uppercased, matching the
// authority set embedded in access tokens.
const (
	PermUserRead           = "USER_READ"
	PermUserCreate         = "USER_CREATE"
	PermUserUpdate         = "USER_UPDATE"
	PermUserDelete         = "USER_DELETE"
	PermUserChangePassword = "USER_CHANGE_PASSWORD"

	PermRoleRead   = "ROLE_READ"
	PermRoleUpdate = "ROLE_UPDATE"

	PermPermissionRead = "PERMISSION_READ"

	PermJobRead   = "JOB_READ"
	PermJobUpdate = "JOB_UPDATE"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUserRead,
		PermUserCreate,
		PermUserUpdate,
		PermUserDelete,
		PermUserChangePassword,
		PermRoleRead,
		PermRoleUpdate,
		PermPermissionRead,
		PermJobRead,
		PermJobUpdate,
	}
}
