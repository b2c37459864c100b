package model

import (
	"fmt"
	"time"
)

// User represents an authentication user.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	VerifiedAdult bool       `json:"verified_adult"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// Actor returns the identity snapshot recorded with ledger writes.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.Username, Role: u.Role, VerifiedAdult: u.VerifiedAdult}
}

// Role is a user's organisational role.
type Role string

// Roles.
const (
	RoleAdmin   Role = "admin"
	RoleArmorer Role = "armorer"
	RoleCoach   Role = "coach"
	RoleMember  Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleArmorer, RoleCoach, RoleMember:
		return true
	}
	return false
}

// Actor is whoever triggers an operation, resolved per request.
type Actor struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	VerifiedAdult bool   `json:"verified_adult"`
}

// Capability predicates. Unknown roles fail closed.

// CanApprove reports whether a can decide off-site requests.
func CanApprove(a Actor) bool { return a.Role == RoleArmorer || a.Role == RoleCoach }

// CanHandleCustody reports whether a can check kits in and out on the premises.
func CanHandleCustody(a Actor) bool {
	return a.Role == RoleAdmin || a.Role == RoleArmorer || a.Role == RoleCoach
}

// CanMaintain reports whether a can open and close maintenance sessions.
func CanMaintain(a Actor) bool { return a.Role == RoleAdmin || a.Role == RoleArmorer }

// CanManageKits reports whether a can register kits and read sealed serials.
func CanManageKits(a Actor) bool { return a.Role == RoleAdmin || a.Role == RoleArmorer }

// CanManageUsers reports whether a can administer accounts.
func CanManageUsers(a Actor) bool { return a.Role == RoleAdmin }

// CanSubmitOffsite reports whether a may request off-site custody.
func CanSubmitOffsite(a Actor) bool { return a.VerifiedAdult }

// Policy decides capabilities for an actor.
type Policy interface {
	CanApprove(Actor) bool
	CanHandleCustody(Actor) bool
	CanMaintain(Actor) bool
	CanManageKits(Actor) bool
	CanSubmitOffsite(Actor) bool
}

// RolePolicy is the Policy backed by the predicates above.
type RolePolicy struct{}

func (RolePolicy) CanApprove(a Actor) bool       { return CanApprove(a) }
func (RolePolicy) CanHandleCustody(a Actor) bool { return CanHandleCustody(a) }
func (RolePolicy) CanMaintain(a Actor) bool      { return CanMaintain(a) }
func (RolePolicy) CanManageKits(a Actor) bool    { return CanManageKits(a) }
func (RolePolicy) CanSubmitOffsite(a Actor) bool { return CanSubmitOffsite(a) }

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
