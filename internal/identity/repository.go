package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrSchoolNotFound     = fmt.Errorf("school %w", apperr.ErrNotFound)
	ErrDuplicateEmail     = fmt.Errorf("a user with this email already exists: %w", apperr.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", apperr.ErrUnauthorized)
	ErrStaffRegistration  = fmt.Errorf("only admins can register guide or admin accounts: %w", apperr.ErrForbidden)
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, apperr.ErrValidation)
	ErrEmptyUpdate        = fmt.Errorf("no fields provided to update: %w", apperr.ErrValidation)
	ErrOTPNotFound        = fmt.Errorf("otp %w", apperr.ErrNotFound)
	ErrOTPExpired         = fmt.Errorf("otp expired: %w", apperr.ErrValidation)
	ErrOTPInvalid         = fmt.Errorf("invalid otp: %w", apperr.ErrValidation)
)

// Repository contains the user and OTP persistence the service needs.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	UpdatePasswordByEmail(ctx context.Context, email, hash string) error
	ExistsWithRole(ctx context.Context, role Role) (bool, error)

	// ReplaceOTP drops any previous code for the email and stores otp.
	ReplaceOTP(ctx context.Context, otp OTP) error
	GetOTP(ctx context.Context, email string) (*OTP, error)
	DeleteOTP(ctx context.Context, email string) error
}
