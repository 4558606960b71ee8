// Package feedback stores the ratings visitors leave after a school visit.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/db"
	"github.com/hackgods/school-visit-booking/internal/identity"
)

var (
	ErrInvalidRating      = fmt.Errorf("rating must be between 1 and 5: %w", apperr.ErrValidation)
	ErrUnknownAppointment = fmt.Errorf("feedback refers to an unknown appointment: %w", apperr.ErrValidation)
	ErrStaffOnly          = fmt.Errorf("only admins and guides can read feedback: %w", apperr.ErrForbidden)
)

type Feedback struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppointmentID *uuid.UUID
	Rating        int
	Comment       *string
	CreatedAt     time.Time
}

type Repository interface {
	Create(ctx context.Context, f *Feedback) error
	List(ctx context.Context) ([]Feedback, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type Input struct {
	Rating        int
	Comment       *string
	AppointmentID *uuid.UUID
}

func (s *Service) Submit(ctx context.Context, actor identity.Actor, in Input) (*Feedback, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	if in.Comment != nil {
		c := strings.TrimSpace(*in.Comment)
		in.Comment = &c
	}
	f := &Feedback{
		ID:            uuid.New(),
		UserID:        actor.UserID,
		AppointmentID: in.AppointmentID,
		Rating:        in.Rating,
		Comment:       in.Comment,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor) ([]Feedback, error) {
	if !actor.Is(identity.RoleAdmin, identity.RoleGuide) {
		return nil, ErrStaffOnly
	}
	return s.repo.List(ctx)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Create(ctx context.Context, f *Feedback) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO feedback (id, user_id, appointment_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`, f.ID, f.UserID, f.AppointmentID, f.Rating, f.Comment).Scan(&f.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrUnknownAppointment
		}
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context) ([]Feedback, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, appointment_id, rating, comment, created_at
		FROM feedback
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Feedback, error) {
		var f Feedback
		err := row.Scan(&f.ID, &f.UserID, &f.AppointmentID, &f.Rating, &f.Comment, &f.CreatedAt)
		return f, err
	})
}
