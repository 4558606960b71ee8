package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
)

type Role string

const (
	RoleVisitor Role = "visitor"
	RoleGuide   Role = "guide"
	RoleAdmin   Role = "admin"
)

var ErrUnknownRole = fmt.Errorf("role must be one of visitor, guide, admin: %w", apperr.ErrValidation)

// ParseRole rejects anything outside the three known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleVisitor, RoleGuide, RoleAdmin:
		return r, nil
	}
	return "", ErrUnknownRole
}

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID uuid.UUID
	Name   string
	Role   Role
}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	SchoolID     *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, Name: u.Name, Role: u.Role}
}

// OTP is a password-recovery code. At most one exists per email.
type OTP struct {
	Email     string
	Code      string
	CreatedAt time.Time
}
