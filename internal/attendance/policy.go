package attendance

import "attendance-service/internal/user"

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   int
	Role user.Role
}

func (a Actor) IsTeacher() bool { return a.Role == user.RoleTeacher }

// canActOn reports whether actor may mark, patch, delete or view records owned by owner.
// Owners always may; a teacher may for students they supervise; nobody else may.
func canActOn(actor Actor, owner *user.User) bool {
	if owner == nil {
		return false
	}
	if owner.ID == actor.ID {
		return true
	}

	switch actor.Role {
	case user.RoleTeacher:
		return owner.SupervisedBy(actor.ID)
	case user.RoleStudent:
		return false
	default:
		return false
	}
}
