package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/school-visit-booking/internal/db"
	"github.com/hackgods/school-visit-booking/internal/identity"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.AppointmentID,
		&n.Message,
		&n.Type,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *PgRepository) Create(ctx context.Context, n *Notification) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, appointment_id, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
		RETURNING created_at
	`, n.ID, n.RecipientID, n.AppointmentID, n.Message, n.Type).Scan(&n.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrRecipientNotFound
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgRepository) Recipients(ctx context.Context, ids []uuid.UUID) ([]Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email FROM users WHERE id = ANY($1) ORDER BY created_at
	`, ids)
	if err != nil {
		return nil, err
	}
	return collectRecipients(rows)
}

func (r *PgRepository) RecipientsByRole(ctx context.Context, role identity.Role) ([]Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email FROM users WHERE role = $1 ORDER BY created_at
	`, role)
	if err != nil {
		return nil, err
	}
	return collectRecipients(rows)
}

func collectRecipients(rows pgx.Rows) ([]Recipient, error) {
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var rc Recipient
		if err := rows.Scan(&rc.ID, &rc.Name, &rc.Email); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, f Filter) ([]Notification, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, recipient_id, appointment_id, message, type, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1`)
	args := []any{recipientID}

	if f.Type != nil {
		args = append(args, *f.Type)
		fmt.Fprintf(&sb, " AND type = $%d", len(args))
	}
	if f.IsRead != nil {
		args = append(args, *f.IsRead)
		fmt.Fprintf(&sb, " AND is_read = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *PgRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *PgRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true WHERE recipient_id = $1 AND is_read = false
	`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
