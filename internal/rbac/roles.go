package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and
// appear in room names.
const (
	RoleDoctor     = "doctor"
	RolePatient    = "patient"
	RolePharmacy   = "pharmacy"
	RoleLaboratory = "laboratory"
	RoleAdmin      = "admin"
)

var knownRoles = map[string]struct{}{
	RoleDoctor:     {},
	RolePatient:    {},
	RolePharmacy:   {},
	RoleLaboratory: {},
	RoleAdmin:      {},
}

func IsKnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

func IsAdmin(role string) bool { return role == RoleAdmin }

// PersonalRoom is the room holding every connection of one user.
func PersonalRoom(role, userID string) string { return role + "-" + userID }

// RoleRoom is the broadcast room shared by every connection of a role,
// e.g. "patients".
func RoleRoom(role string) string { return role + "s" }
