package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOperator = "operator" // places calls
	RoleAnalyst  = "analyst"  // reads statistics
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnown(role string) bool {
	switch role {
	case RoleOperator, RoleAnalyst, RoleAdmin:
		return true
	}
	return false
}
