package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/mail"
)

type Dispatcher struct {
	repo             Repository
	sender           mail.Sender
	contactRecipient string
}

func NewDispatcher(repo Repository, sender mail.Sender, contactRecipient string) *Dispatcher {
	return &Dispatcher{
		repo:             repo,
		sender:           sender,
		contactRecipient: contactRecipient,
	}
}

// Email sends one message and surfaces the sender error.
func (d *Dispatcher) Email(ctx context.Context, subject string, recipients []string, body string) error {
	return d.sender.Send(ctx, subject, recipients, body)
}

// Notify stores one unread notification per recipient and emails each of them.
// Email failures are logged and do not stop the remaining recipients.
func (d *Dispatcher) Notify(ctx context.Context, recipientIDs []uuid.UUID, draft Draft) (int, error) {
	ids := dedupe(recipientIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	recipients, err := d.repo.Recipients(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) < len(ids) {
		log.Printf("notify skipped unknown recipients requested=%d found=%d type=%q", len(ids), len(recipients), draft.Type)
	}
	return d.deliver(ctx, recipients, draft)
}

// NotifyRole notifies every user holding role.
func (d *Dispatcher) NotifyRole(ctx context.Context, role identity.Role, draft Draft) (int, error) {
	recipients, err := d.repo.RecipientsByRole(ctx, role)
	if err != nil {
		return 0, fmt.Errorf("load %s recipients: %w", role, err)
	}
	if len(recipients) == 0 {
		log.Printf("notify role=%s found no users type=%q", role, draft.Type)
		return 0, nil
	}
	return d.deliver(ctx, recipients, draft)
}

func (d *Dispatcher) deliver(ctx context.Context, recipients []Recipient, draft Draft) (int, error) {
	created := 0
	for _, rc := range recipients {
		n := &Notification{
			ID:            uuid.New(),
			RecipientID:   rc.ID,
			AppointmentID: draft.AppointmentID,
			Message:       draft.Message,
			Type:          draft.Type,
		}
		if err := d.repo.Create(ctx, n); err != nil {
			return created, fmt.Errorf("create notification for %s: %w", rc.ID, err)
		}
		created++

		if err := d.sender.Send(ctx, subjectFor(draft.Type), []string{rc.Email}, renderBody(rc.Name, draft.Message)); err != nil {
			log.Printf("failed to email notification recipient=%s type=%q: %v", rc.ID, draft.Type, err)
		}
	}
	return created, nil
}

// Create stores a single notification for an arbitrary user (admin only). Unlike
// fan-out, an email failure is returned to the caller; the row is kept.
func (d *Dispatcher) Create(ctx context.Context, actor identity.Actor, recipientID uuid.UUID, draft Draft) (*Notification, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	recipients, err := d.repo.Recipients(ctx, []uuid.UUID{recipientID})
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if len(recipients) == 0 {
		return nil, ErrRecipientNotFound
	}
	rc := recipients[0]

	n := &Notification{
		ID:            uuid.New(),
		RecipientID:   rc.ID,
		AppointmentID: draft.AppointmentID,
		Message:       draft.Message,
		Type:          draft.Type,
	}
	if err := d.repo.Create(ctx, n); err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create notification: %w", err)
	}

	if err := d.sender.Send(ctx, subjectFor(draft.Type), []string{rc.Email}, renderBody(rc.Name, draft.Message)); err != nil {
		return n, fmt.Errorf("send notification email: %w", err)
	}
	return n, nil
}

// BroadcastToGuides sends an admin-authored message to every guide.
func (d *Dispatcher) BroadcastToGuides(ctx context.Context, actor identity.Actor, message, kind string) (int, error) {
	if !actor.Is(identity.RoleAdmin) {
		return 0, ErrAdminOnly
	}
	draft := Draft{Message: message, Type: kind}
	if err := validateDraft(draft); err != nil {
		return 0, err
	}
	return d.NotifyRole(ctx, identity.RoleGuide, draft)
}

func (d *Dispatcher) List(ctx context.Context, actor identity.Actor, f Filter) ([]Notification, error) {
	return d.repo.ListForRecipient(ctx, actor.UserID, f)
}

func (d *Dispatcher) MarkRead(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	return d.repo.MarkRead(ctx, id, actor.UserID)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, actor identity.Actor) (int, error) {
	return d.repo.MarkAllRead(ctx, actor.UserID)
}

// Delete removes one of the caller's own notifications.
func (d *Dispatcher) Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	return d.repo.Delete(ctx, id, actor.UserID)
}

// Contact forwards a public contact-form message to the fixed contact address.
func (d *Dispatcher) Contact(ctx context.Context, senderName, senderEmail, message string) error {
	if strings.TrimSpace(senderName) == "" || strings.TrimSpace(senderEmail) == "" || strings.TrimSpace(message) == "" {
		return ErrContactInvalid
	}
	subject := "New Contact Form Message from " + senderName
	body := fmt.Sprintf("<p><strong>From:</strong> %s (%s)</p><p><strong>Message:</strong></p><p>%s</p>",
		html.EscapeString(senderName), html.EscapeString(senderEmail), html.EscapeString(message))
	if err := d.sender.Send(ctx, subject, []string{d.contactRecipient}, body); err != nil {
		return fmt.Errorf("send contact email: %w", err)
	}
	return nil
}

func validateDraft(draft Draft) error {
	if strings.TrimSpace(draft.Message) == "" || strings.TrimSpace(draft.Type) == "" {
		return ErrEmptyMessage
	}
	return nil
}

func subjectFor(kind string) string {
	return "Notification: " + kind
}

func renderBody(name, message string) string {
	return fmt.Sprintf("<p>Hello %s,</p><p>You have a new notification:</p><p>%s</p><p>Thank you,<br>Guidex Team</p>",
		html.EscapeString(name), html.EscapeString(message))
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
