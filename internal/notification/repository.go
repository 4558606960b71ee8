package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/identity"
)

var (
	ErrNotificationNotFound = fmt.Errorf("notification %w", apperr.ErrNotFound)
	ErrRecipientNotFound    = fmt.Errorf("recipient %w", apperr.ErrNotFound)
	ErrAdminOnly            = fmt.Errorf("only admins can send notifications: %w", apperr.ErrForbidden)
	ErrEmptyMessage         = fmt.Errorf("message and type are required: %w", apperr.ErrValidation)
	ErrContactInvalid       = fmt.Errorf("sender name, email and message are required: %w", apperr.ErrValidation)
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error

	// Recipients returns the users among ids that exist; unknown ids are skipped.
	Recipients(ctx context.Context, ids []uuid.UUID) ([]Recipient, error)
	RecipientsByRole(ctx context.Context, role identity.Role) ([]Recipient, error)

	ListForRecipient(ctx context.Context, recipientID uuid.UUID, f Filter) ([]Notification, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
	Delete(ctx context.Context, id, recipientID uuid.UUID) error
}
