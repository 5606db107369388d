package model

// Role names accepted by the API.  The roles table stores one row per
// name; users reference them through user_roles.
const (
    RoleAdmin = "Admin"
    RoleUser  = "User"
    RoleGuest = "Guest"
)

// AllowedRoles returns the role names a user may be assigned.
func AllowedRoles() []string {
    return []string{RoleAdmin, RoleUser, RoleGuest}
}

// ValidRole reports whether name is one of AllowedRoles.  Matching is
// case-sensitive.
func ValidRole(name string) bool {
    for _, r := range AllowedRoles() {
        if r == name {
            return true
        }
    }
    return false
}
