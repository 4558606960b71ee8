package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const appointmentColumns = `id, user_id, guide_id, visit_date, to_char(visit_time, 'HH24:MI:SS'),
	city, visitors_number, note, status, created_at, updated_at`

// joinedColumns adds the visitor's school name; used with the a/u/s aliases below.
const joinedColumns = `a.id, a.user_id, a.guide_id, a.visit_date, to_char(a.visit_time, 'HH24:MI:SS'),
	a.city, a.visitors_number, a.note, a.status, a.created_at, a.updated_at, COALESCE(s.name, '')`

const joinedFrom = `
	FROM appointments a
	JOIN users u ON u.id = a.user_id
	LEFT JOIN schools s ON s.id = u.school_id`

// Helpers

func scanAppointment(row pgx.Row, extra ...any) (*Appointment, error) {
	var a Appointment
	dest := []any{
		&a.ID,
		&a.UserID,
		&a.GuideID,
		&a.Date,
		&a.Time,
		&a.City,
		&a.VisitorsNumber,
		&a.Note,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collect(rows pgx.Rows, joined bool) ([]Appointment, error) {
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var school string
		var extra []any
		if joined {
			extra = append(extra, &school)
		}
		a, err := scanAppointment(rows, extra...)
		if err != nil {
			return nil, err
		}
		a.SchoolName = school
		out = append(out, *a)
	}
	return out, rows.Err()
}

func statusStrings(list []Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func writeError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStateChanged
	}
	if db.IsUniqueViolation(err) {
		return ErrSlotBooked
	}
	return err
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, visit_date, visit_time, city, visitors_number, note, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::time, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.UserID, a.Date, a.Time, a.City, a.VisitorsNumber, a.Note, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrSlotBooked
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) SlotTaken(ctx context.Context, date time.Time, slot string, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE visit_date = $1 AND visit_time = $2::time
			  AND status NOT IN ('rejected', 'canceled')
			  AND id <> $3
		)
	`, date, slot, exclude).Scan(&taken)
	return taken, err
}

func (r *PgRepository) BookedTimes(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(visit_time, 'HH24:MI:SS')
		FROM appointments
		WHERE visit_date = $1 AND status NOT IN ('rejected', 'canceled')
	`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, clearGuide bool) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    guide_id = CASE WHEN $4::boolean THEN NULL ELSE guide_id END,
		    updated_at = now()
		WHERE id = $1 AND status = ANY($2::text[])
		RETURNING `+appointmentColumns,
		id, statusStrings(from), to, clearGuide)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStateChanged
		}
		return nil, writeError(err)
	}
	return a, nil
}

func (r *PgRepository) AssignGuide(ctx context.Context, id, guideID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET guide_id = $2, status = $3, updated_at = now()
		WHERE id = $1 AND status = $4 AND guide_id IS NULL
		RETURNING `+appointmentColumns,
		id, guideID, StatusAccepted, StatusApproved)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStateChanged
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) ReleaseGuide(ctx context.Context, id uuid.UUID, guideID *uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET guide_id = NULL, status = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND ($4::uuid IS NULL OR guide_id = $4)
		RETURNING `+appointmentColumns,
		id, StatusApproved, StatusAccepted, guideID)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStateChanged
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment, from []Status) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET visit_date = $2, visit_time = $3::time, visitors_number = $4, note = $5,
		    status = $6, guide_id = $7, updated_at = now()
		WHERE id = $1 AND status = ANY($8::text[])
		RETURNING updated_at
	`, a.ID, a.Date, a.Time, a.VisitorsNumber, a.Note, a.Status, a.GuideID, statusStrings(from)).Scan(&a.UpdatedAt)
	if err != nil {
		return writeError(err)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY visit_date DESC, visit_time DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, false)
}

func (r *PgRepository) ListByStatus(ctx context.Context, status Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		ORDER BY visit_date, visit_time
	`, status)
	if err != nil {
		return nil, err
	}
	return collect(rows, false)
}

func (r *PgRepository) ListAvailableForGuides(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+joinedColumns+joinedFrom+`
		WHERE a.status = $1 AND a.guide_id IS NULL
		ORDER BY a.visit_date, a.visit_time
	`, StatusApproved)
	if err != nil {
		return nil, err
	}
	return collect(rows, true)
}

func (r *PgRepository) ListByGuide(ctx context.Context, guideID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+joinedColumns+joinedFrom+`
		WHERE a.guide_id = $1
		ORDER BY a.visit_date, a.visit_time
	`, guideID)
	if err != nil {
		return nil, err
	}
	return collect(rows, true)
}

func (r *PgRepository) ListAdminQueue(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+joinedColumns+joinedFrom+`
		WHERE a.status NOT IN ('canceled', 'completed')
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, true)
}

func (r *PgRepository) FindCompletable(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1 AND visit_date < $2
		ORDER BY visit_date
	`, StatusAccepted, before)
	if err != nil {
		return nil, err
	}
	return collect(rows, false)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}
