package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	hashCost = bcrypt.MinCost
}

type memRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*User
	otps    map[string]OTP
	schools map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:   map[uuid.UUID]*User{},
		otps:    map[string]OTP{},
		schools: map[uuid.UUID]bool{},
	}
}

func (m *memRepo) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	if u.SchoolID != nil && !m.schools[*u.SchoolID] {
		return ErrSchoolNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memRepo) UpdateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	for id, existing := range m.users {
		if id != u.ID && existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) UpdatePasswordByEmail(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.PasswordHash = hash
			return nil
		}
	}
	return ErrUserNotFound
}

func (m *memRepo) ExistsWithRole(_ context.Context, role Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ReplaceOTP(_ context.Context, otp OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[otp.Email] = otp
	return nil
}

func (m *memRepo) GetOTP(_ context.Context, email string) (*OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[email]
	if !ok {
		return nil, ErrOTPNotFound
	}
	return &o, nil
}

func (m *memRepo) DeleteOTP(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.otps, email)
	return nil
}

type sentMail struct {
	subject    string
	recipients []string
	body       string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Email(_ context.Context, subject string, recipients []string, html string) error {
	f.sent = append(f.sent, sentMail{subject: subject, recipients: recipients, body: html})
	return f.err
}

var errSMTPDown = errors.New("smtp down")
