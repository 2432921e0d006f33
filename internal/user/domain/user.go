package domain

import (
	"errors"
	"time"
)

// User is an approver or administrator known to the governance service. Accounts are managed elsewhere;
// this service only reads them to resolve roles and approver emails.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	Status    UserStatus
	CreatedAt time.Time
}

type Role string

const (
	RoleAdmin               Role = "Admin"
	RoleGovernanceAuthority Role = "GovernanceAuthority"
	RoleTokenUser           Role = "TokenUser"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Active reports whether the user may act. Nil users are inactive.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	switch u.Role {
	case RoleAdmin, RoleGovernanceAuthority, RoleTokenUser:
	default:
		return errors.New("role is invalid")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
