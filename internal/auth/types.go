package auth

import (
	"errors"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a parcel box owner authenticated via Google sign-in.
	// Users can register parcels, operate their boxes, and receive
	// delivery notifications on their personal bus topic.
	RoleUser Role = "user"

	// RoleHardware is a box agent identity (lock controller or load
	// cell). Hardware reads command topics for its box and publishes
	// delivery events and user notifications.
	RoleHardware Role = "hardware"

	// RoleServer is the coordination core itself. Full read and write
	// access to every topic class.
	RoleServer Role = "server"
)

// ValidRoles is the set of roles a bus token can be issued for.
var ValidRoles = []Role{RoleUser, RoleHardware, RoleServer}

// IsValidRole returns true if the role is recognised.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an authenticated box owner.
//
// Accounts are created implicitly on first Google sign-in; the Google
// subject claim is the stable external identifier.
type User struct {
	ID        int64     `json:"id"`
	GoogleSub string    `json:"-"` // never serialised
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrTokenExpired    = errors.New("token has expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrIDTokenRejected = errors.New("google id token rejected")
	ErrForbidden       = errors.New("insufficient permissions")
)
