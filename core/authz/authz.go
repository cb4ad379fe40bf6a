// Package authz holds every role based access rule of the portal.
// Services call it before touching the store; the HTTP middleware reuses the same predicates
// only to fail fast.
package authz

import "github.com/trezcool/alumni/core"

// Roles
const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Subject is the authenticated party an access rule is evaluated for.
type Subject interface {
	SubjectID() string
	SubjectRole() string
	SubjectActive() bool
}

func active(s Subject) bool {
	return s != nil && s.SubjectActive()
}

func IsAdmin(s Subject) bool {
	if !active(s) {
		return false
	}
	role := s.SubjectRole()
	return role == RoleAdmin || role == RoleSuperAdmin
}

func IsSuperAdmin(s Subject) bool {
	return active(s) && s.SubjectRole() == RoleSuperAdmin
}

func CanAccessAdmin(s Subject) bool       { return IsAdmin(s) }
func CanManageMembers(s Subject) bool     { return IsAdmin(s) }
func CanManageEvents(s Subject) bool      { return IsAdmin(s) }
func CanManageMasterData(s Subject) bool  { return IsAdmin(s) }
func CanResetCredentials(s Subject) bool  { return IsSuperAdmin(s) }
func CanRegisterForEvents(s Subject) bool { return active(s) }
func CanCheckIn(s Subject) bool           { return active(s) }

func CanViewProfile(s Subject, ownerID string) bool {
	return active(s) && (s.SubjectID() == ownerID || IsAdmin(s))
}

func CanEditProfile(s Subject, ownerID string) bool {
	return CanViewProfile(s, ownerID)
}

// Require returns core.ErrUnauthenticated when there is no subject
// and core.ErrForbidden when the rule is not satisfied.
func Require(s Subject, rule func(Subject) bool) error {
	if s == nil {
		return core.ErrUnauthenticated
	}
	if !rule(s) {
		return core.ErrForbidden
	}
	return nil
}
