package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
)

type Status string

const (
	StatusCreated      Status = "created"
	StatusPendingAdmin Status = "pending_admin"
	StatusApproved     Status = "approved"
	StatusAccepted     Status = "accepted"
	StatusRejected     Status = "rejected"
	StatusCompleted    Status = "completed"
	StatusCanceled     Status = "canceled"
)

var AllStatuses = []Status{
	StatusCreated,
	StatusPendingAdmin,
	StatusApproved,
	StatusAccepted,
	StatusRejected,
	StatusCompleted,
	StatusCanceled,
}

var ErrUnknownStatus = fmt.Errorf("unknown appointment status: %w", apperr.ErrValidation)

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}

// HoldsSlot reports whether an appointment in this status occupies its date and time.
func (s Status) HoldsSlot() bool {
	return s != StatusRejected && s != StatusCanceled
}

// HasGuide reports whether a guide reference is allowed in this status.
func (s Status) HasGuide() bool {
	return s == StatusAccepted || s == StatusCompleted
}

// DateLayout is the wire and storage format of visit dates.
const DateLayout = "2006-01-02"

// TimeSlots is the fixed daily slot universe, in order.
var TimeSlots = []string{"10:00:00", "13:00:00", "15:00:00"}

func validSlot(t string) bool {
	for _, s := range TimeSlots {
		if s == t {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	GuideID        *uuid.UUID
	Date           time.Time
	Time           string
	City           string
	VisitorsNumber int
	Note           *string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// SchoolName is filled by the joined listings only.
	SchoolName string
}

func (a *Appointment) slotKey() string {
	return slotKey(a.Date, a.Time)
}

func (a *Appointment) when() string {
	return a.Date.Format(DateLayout) + ", " + a.Time
}

func slotKey(date time.Time, t string) string {
	return "slot:" + date.Format(DateLayout) + "T" + t
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
