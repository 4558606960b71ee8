package school

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

func scanSchool(row pgx.Row, missing error) (*School, error) {
	var s School
	if err := row.Scan(&s.ID, &s.Name, &s.City, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, missing
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) List(ctx context.Context) ([]School, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, city, created_at FROM schools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	defer rows.Close()

	var out []School
	for rows.Next() {
		s, err := scanSchool(rows, ErrSchoolNotFound)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*School, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, city, created_at FROM schools WHERE id = $1`, id)
	return scanSchool(row, ErrSchoolNotFound)
}

func (r *PgRepository) Create(ctx context.Context, s *School) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schools (id, name, city, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at
	`, s.ID, s.Name, s.City).Scan(&s.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateSchool
		}
		return fmt.Errorf("insert school: %w", err)
	}
	return nil
}

func (r *PgRepository) Update(ctx context.Context, s *School) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE schools SET name = $2, city = $3 WHERE id = $1
		RETURNING created_at
	`, s.ID, s.Name, s.City).Scan(&s.CreatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrSchoolNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicateSchool
	}
	return fmt.Errorf("update school: %w", err)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schools WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrSchoolInUse
		}
		return fmt.Errorf("delete school: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSchoolNotFound
	}
	return nil
}

func (r *PgRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM schools`).Scan(&n)
	return n, err
}

func (r *PgRepository) OfUser(ctx context.Context, userID uuid.UUID) (*School, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.id, s.name, s.city, s.created_at
		FROM users u
		JOIN schools s ON s.id = u.school_id
		WHERE u.id = $1
	`, userID)
	return scanSchool(row, ErrNoSchool)
}
