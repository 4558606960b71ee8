package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", apperr.ErrNotFound)
	ErrSlotBooked          = fmt.Errorf("time slot is already booked: %w", apperr.ErrConflict)
	ErrSlotBusy            = fmt.Errorf("time slot is currently being booked, please retry: %w", apperr.ErrConflict)
	ErrAlreadyAssigned     = fmt.Errorf("appointment already assigned to a guide: %w", apperr.ErrConflict)
	ErrInvalidTransition   = apperr.ErrInvalidTransition

	// ErrStateChanged is returned by conditional writes whose precondition no longer holds.
	ErrStateChanged = fmt.Errorf("appointment state changed concurrently: %w", apperr.ErrConflict)
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Slot checks; rejected and canceled appointments do not hold a slot.
	SlotTaken(ctx context.Context, date time.Time, slot string, exclude uuid.UUID) (bool, error)
	BookedTimes(ctx context.Context, date time.Time) ([]string, error)

	// Transition moves id to the target status only while it is in one of from.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, clearGuide bool) (*Appointment, error)
	// AssignGuide sets the guide only while the appointment is approved and unassigned.
	AssignGuide(ctx context.Context, id, guideID uuid.UUID) (*Appointment, error)
	// ReleaseGuide returns an accepted appointment to approved and clears its guide.
	// A non-nil guideID additionally requires that guide to still hold it.
	ReleaseGuide(ctx context.Context, id uuid.UUID, guideID *uuid.UUID) (*Appointment, error)
	// Update writes the editable fields, guide and status while status is in from.
	Update(ctx context.Context, a *Appointment, from []Status) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) error

	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByStatus(ctx context.Context, status Status) ([]Appointment, error)
	ListAvailableForGuides(ctx context.Context) ([]Appointment, error)
	ListByGuide(ctx context.Context, guideID uuid.UUID) ([]Appointment, error)
	ListAdminQueue(ctx context.Context) ([]Appointment, error)

	// Completion worker
	FindCompletable(ctx context.Context, before time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
