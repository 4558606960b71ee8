package notification

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID            uuid.UUID
	RecipientID   uuid.UUID
	AppointmentID *uuid.UUID
	Message       string
	Type          string
	IsRead        bool
	CreatedAt     time.Time
}

// Recipient is the slice of a user that delivery needs.
type Recipient struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// Draft is the content shared by every notification of one fan-out.
type Draft struct {
	AppointmentID *uuid.UUID
	Message       string
	Type          string
}

// Filter narrows a recipient's notifications; nil fields match everything.
type Filter struct {
	Type   *string
	IsRead *bool
}
