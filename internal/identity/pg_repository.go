package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/school-visit-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, name, email, role, password_hash, school_id, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.PasswordHash,
		&u.SchoolID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func userWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicateEmail
	case db.IsForeignKeyViolation(err):
		return ErrSchoolNotFound
	}
	return err
}

func (r *PgRepository) CreateUser(ctx context.Context, u *User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, role, password_hash, school_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, u.ID, u.Name, u.Email, u.Role, u.PasswordHash, u.SchoolID)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return userWriteError(err)
	}
	return nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *PgRepository) UpdateUser(ctx context.Context, u *User) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash)
	if err := row.Scan(&u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return userWriteError(err)
	}
	return nil
}

func (r *PgRepository) UpdatePasswordByEmail(ctx context.Context, email, hash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE email = $1
	`, email, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PgRepository) ExistsWithRole(ctx context.Context, role Role) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`, role).Scan(&exists)
	return exists, err
}

func (r *PgRepository) ReplaceOTP(ctx context.Context, otp OTP) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM otps WHERE email = $1`, otp.Email); err != nil {
		return fmt.Errorf("delete previous otp: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO otps (email, code, created_at) VALUES ($1, $2, $3)
	`, otp.Email, otp.Code, otp.CreatedAt); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetOTP(ctx context.Context, email string) (*OTP, error) {
	var o OTP
	err := r.pool.QueryRow(ctx, `
		SELECT email, code, created_at FROM otps WHERE email = $1
	`, email).Scan(&o.Email, &o.Code, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *PgRepository) DeleteOTP(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE email = $1`, email)
	return err
}
