package school

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
)

var (
	ErrSchoolNotFound  = fmt.Errorf("school %w", apperr.ErrNotFound)
	ErrNoSchool        = fmt.Errorf("user's school %w", apperr.ErrNotFound)
	ErrDuplicateSchool = fmt.Errorf("school with the same name and city already exists: %w", apperr.ErrConflict)
	ErrSchoolInUse     = fmt.Errorf("school is still referenced by users: %w", apperr.ErrConflict)
	ErrInvalidSchool   = fmt.Errorf("school name and city are required: %w", apperr.ErrValidation)
	ErrAdminOnly       = fmt.Errorf("only admins can manage schools: %w", apperr.ErrForbidden)
)

type Repository interface {
	List(ctx context.Context) ([]School, error)
	Get(ctx context.Context, id uuid.UUID) (*School, error)
	Create(ctx context.Context, s *School) error
	Update(ctx context.Context, s *School) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)

	// OfUser returns the school linked to a user, ErrNoSchool when there is none.
	OfUser(ctx context.Context, userID uuid.UUID) (*School, error)
}
