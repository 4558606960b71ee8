package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const minPasswordLen = 8

// Mailer is the email channel of notification dispatch.
type Mailer interface {
	Email(ctx context.Context, subject string, recipients []string, html string) error
}

type Service struct {
	repo   Repository
	issuer *Issuer
	mailer Mailer
	otpTTL time.Duration
	now    func() time.Time
}

func NewService(repo Repository, issuer *Issuer, mailer Mailer, otpTTL time.Duration) *Service {
	return &Service{
		repo:   repo,
		issuer: issuer,
		mailer: mailer,
		otpTTL: otpTTL,
		now:    time.Now,
	}
}

type RegisterInput struct {
	Email    string
	Role     string
	Name     string
	SchoolID *uuid.UUID
	Password string
}

// Register creates an account. Anyone may register a visitor; guide and admin
// accounts need an admin caller.
func (s *Service) Register(ctx context.Context, caller *Actor, in RegisterInput) (*User, error) {
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if role != RoleVisitor && (caller == nil || caller.Role != RoleAdmin) {
		return nil, ErrStaffRegistration
	}
	return s.Provision(ctx, in)
}

// Provision creates a user without any caller policy. Used by Register and the seeders.
func (s *Service) Provision(ctx context.Context, in RegisterInput) (*User, error) {
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        normalizeEmail(in.Email),
		Role:         role,
		PasswordHash: hash,
		SchoolID:     in.SchoolID,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrSchoolNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// EnsureRole provisions in only when no user with its role exists yet.
func (s *Service) EnsureRole(ctx context.Context, in RegisterInput) (bool, error) {
	role, err := ParseRole(in.Role)
	if err != nil {
		return false, err
	}
	exists, err := s.repo.ExistsWithRole(ctx, role)
	if err != nil {
		return false, fmt.Errorf("check %s exists: %w", role, err)
	}
	if exists {
		return false, nil
	}
	if _, err := s.Provision(ctx, in); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	tok, exp, err := s.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

// ResolveToken verifies raw and returns its user id and display name.
func (s *Service) ResolveToken(raw string) (uuid.UUID, string, error) {
	c, err := s.issuer.Parse(raw)
	if err != nil {
		return uuid.Nil, "", err
	}
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return id, c.Username(), nil
}

// Authorize resolves a bearer token to the caller with its current role.
func (s *Service) Authorize(ctx context.Context, raw string) (Actor, error) {
	id, _, err := s.ResolveToken(raw)
	if err != nil {
		return Actor{}, err
	}
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Actor{}, ErrInvalidToken
		}
		return Actor{}, fmt.Errorf("load user: %w", err)
	}
	return u.Actor(), nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
}

// UpdateUser patches the caller's own profile.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, p UserPatch) (*User, error) {
	if p.Name == nil && p.Email == nil && p.Password == nil {
		return nil, ErrEmptyUpdate
	}

	u, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = normalizeEmail(*p.Email)
	}
	if p.Password != nil {
		if len(*p.Password) < minPasswordLen {
			return nil, ErrWeakPassword
		}
		hash, err := HashPassword(*p.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// RequestOTP replaces any previous code for email and mails the new one.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	otp := OTP{Email: u.Email, Code: code, CreatedAt: s.now().UTC()}
	if err := s.repo.ReplaceOTP(ctx, otp); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	body := fmt.Sprintf("Your OTP is %s. It is valid for %d minutes.", code, int(s.otpTTL.Minutes()))
	if err := s.mailer.Email(ctx, "Your OTP Code", []string{u.Email}, body); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	log.Printf("otp issued email=%s", u.Email)
	return nil
}

// VerifyOTP consumes a matching, unexpired code. An expired code is deleted on
// first use; a wrong code leaves it in place.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	otp, err := s.repo.GetOTP(ctx, email)
	if err != nil {
		return err
	}

	if s.now().After(otp.CreatedAt.Add(s.otpTTL)) {
		if err := s.repo.DeleteOTP(ctx, email); err != nil {
			log.Printf("failed to delete expired otp email=%s: %v", email, err)
		}
		return ErrOTPExpired
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(code)) != 1 {
		return ErrOTPInvalid
	}

	if err := s.repo.DeleteOTP(ctx, email); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// ResetPassword overwrites the password hash for email. It does not check OTP
// possession; callers are expected to have verified a code first.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePasswordByEmail(ctx, normalizeEmail(email), hash)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
