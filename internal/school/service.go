package school

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/identity"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type Input struct {
	Name string
	City string
}

func (in Input) normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.City = strings.TrimSpace(in.City)
	if in.Name == "" || in.City == "" {
		return in, ErrInvalidSchool
	}
	return in, nil
}

func (s *Service) List(ctx context.Context) ([]School, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*School, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor identity.Actor, in Input) (*School, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	sc := &School{ID: uuid.New(), Name: in.Name, City: in.City}
	if err := s.repo.Create(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Actor, id uuid.UUID, in Input) (*School, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	sc := &School{ID: id, Name: in.Name, City: in.City}
	if err := s.repo.Update(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	if !actor.Is(identity.RoleAdmin) {
		return ErrAdminOnly
	}
	return s.repo.Delete(ctx, id)
}

// OfUser resolves the school, and so the city, a visitor registered with.
func (s *Service) OfUser(ctx context.Context, userID uuid.UUID) (*School, error) {
	return s.repo.OfUser(ctx, userID)
}

// SeedIfEmpty loads list into the table when it holds no schools yet.
func (s *Service) SeedIfEmpty(ctx context.Context, list []School) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count schools: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	created := 0
	for _, item := range list {
		sc := &School{ID: uuid.New(), Name: item.Name, City: item.City}
		if err := s.repo.Create(ctx, sc); err != nil {
			if errors.Is(err, ErrDuplicateSchool) {
				continue
			}
			return created, fmt.Errorf("seed school %q: %w", item.Name, err)
		}
		created++
	}
	log.Printf("schools seeded count=%d", created)
	return created, nil
}
