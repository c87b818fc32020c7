package policy

import "github.com/upb/identity-gateway/models"

// Operation names guarded by Authorize
const (
	OpReadUserTodos = "todos.read_user"
	OpReadOwnTodos  = "todos.read_own"
	OpCreateTodo    = "todos.create"
	OpReadUser      = "user.read"
	OpLogout        = "session.logout"
)

// RoleSRE is the operator role. Operators may read any user's list but own none.
const RoleSRE = "sre"

// Predicate decides whether a principal may perform an operation
type Predicate func(models.Principal) bool

// HasRole admits principals carrying ROLE_<role>
func HasRole(role string) Predicate {
	return func(p models.Principal) bool { return p.HasRole(role) }
}

// LacksRole admits principals not carrying ROLE_<role>
func LacksRole(role string) Predicate {
	return func(p models.Principal) bool { return !p.HasRole(role) }
}

// AnyPrincipal admits every authenticated principal
func AnyPrincipal() Predicate {
	return func(models.Principal) bool { return true }
}

// DefaultOperations returns the operation table. For every principal exactly
// one of OpReadUserTodos and OpReadOwnTodos is allowed.
func DefaultOperations() map[string]Predicate {
	return map[string]Predicate{
		OpReadUserTodos: HasRole(RoleSRE),
		OpReadOwnTodos:  LacksRole(RoleSRE),
		OpCreateTodo:    LacksRole(RoleSRE),
		OpReadUser:      AnyPrincipal(),
		OpLogout:        AnyPrincipal(),
	}
}
