package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/notification"
	redisclient "github.com/hackgods/school-visit-booking/internal/redis"
	"github.com/hackgods/school-visit-booking/internal/school"
)

const (
	EventAppointmentCreated    = "APPOINTMENT_CREATED"
	EventAppointmentUpdated    = "APPOINTMENT_UPDATED"
	EventAppointmentApproved   = "APPOINTMENT_APPROVED"
	EventAppointmentRejected   = "APPOINTMENT_REJECTED"
	EventGuideAssigned         = "GUIDE_ASSIGNED"
	EventGuideUnassigned       = "GUIDE_UNASSIGNED"
	EventAppointmentCanceled   = "APPOINTMENT_CANCELED"
	EventAppointmentCompleted  = "APPOINTMENT_COMPLETED"
	EventAppointmentOverridden = "APPOINTMENT_OVERRIDDEN"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

var (
	ErrInvalidDate      = fmt.Errorf("date must be formatted as YYYY-MM-DD: %w", apperr.ErrValidation)
	ErrPastDate         = fmt.Errorf("visit date must not be in the past: %w", apperr.ErrValidation)
	ErrInvalidSlot      = fmt.Errorf("time must be one of %s: %w", strings.Join(TimeSlots, ", "), apperr.ErrValidation)
	ErrInvalidVisitors  = fmt.Errorf("visitors_number must be at least 1: %w", apperr.ErrValidation)
	ErrGuideRequired    = fmt.Errorf("accepted and completed appointments need an assigned guide: %w", apperr.ErrValidation)
	ErrEmptyPatch       = fmt.Errorf("no fields provided to update: %w", apperr.ErrValidation)
	ErrVisitorsOnly     = fmt.Errorf("only visitors can request appointments: %w", apperr.ErrForbidden)
	ErrAdminOnly        = fmt.Errorf("only admins can do this: %w", apperr.ErrForbidden)
	ErrGuidesOnly       = fmt.Errorf("only guides can do this: %w", apperr.ErrForbidden)
	ErrStaffOnly        = fmt.Errorf("only guides and admins can do this: %w", apperr.ErrForbidden)
	ErrNotAssignedGuide = fmt.Errorf("only the assigned guide or an admin can unassign: %w", apperr.ErrForbidden)
)

// Notifier is the part of notification dispatch the lifecycle triggers.
type Notifier interface {
	Notify(ctx context.Context, recipientIDs []uuid.UUID, draft notification.Draft) (int, error)
	NotifyRole(ctx context.Context, role identity.Role, draft notification.Draft) (int, error)
}

// Directory resolves the school a visitor registered with.
type Directory interface {
	OfUser(ctx context.Context, userID uuid.UUID) (*school.School, error)
}

type Service struct {
	repo      Repository
	notifier  Notifier
	directory Directory
	locker    redisclient.Locker
	now       func() time.Time
}

func NewService(repo Repository, notifier Notifier, directory Directory, locker redisclient.Locker) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		directory: directory,
		locker:    locker,
		now:       time.Now,
	}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

type CreateInput struct {
	Date           string
	Time           string
	VisitorsNumber int
	Note           *string
}

// CreateAppointment books a visit for the calling visitor. The city is taken
// from the visitor's school. A distributed lock on the date and time makes
// concurrent requests for the same slot serialize on the availability check.
func (s *Service) CreateAppointment(ctx context.Context, actor identity.Actor, in CreateInput) (*Appointment, error) {
	if !actor.Is(identity.RoleVisitor) {
		return nil, ErrVisitorsOnly
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(s.today()) {
		return nil, ErrPastDate
	}
	if !validSlot(in.Time) {
		return nil, ErrInvalidSlot
	}
	if in.VisitorsNumber < 1 {
		return nil, ErrInvalidVisitors
	}

	sc, err := s.directory.OfUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load visitor school: %w", err)
	}

	appt := &Appointment{
		ID:             uuid.New(),
		UserID:         actor.UserID,
		Date:           date,
		Time:           in.Time,
		City:           sc.City,
		VisitorsNumber: in.VisitorsNumber,
		Note:           in.Note,
		Status:         StatusCreated,
	}

	err = s.withSlot(ctx, appt.slotKey(), func(lockCtx context.Context) error {
		taken, err := s.repo.SlotTaken(lockCtx, appt.Date, appt.Time, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotBooked
		}
		if err := s.repo.Create(lockCtx, appt); err != nil {
			return err
		}
		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"user_id": actor.UserID.String(),
			"date":    appt.Date.Format(DateLayout),
			"time":    appt.Time,
			"city":    appt.City,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyRole(ctx, identity.RoleAdmin, appt, "A new appointment has been made at "+appt.when()+".", "New Appointment")
	s.notifyUsers(ctx, []uuid.UUID{appt.UserID}, appt,
		"Your appointment has been created for "+appt.when()+". Waiting for confirmation.", "Appointment Created")

	return appt, nil
}

// Approve lets an admin accept a request; guides may then pick it up.
func (s *Service) Approve(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	appt, err := s.apply(ctx, id, ActionApprove)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentApproved, map[string]any{"by": actor.UserID.String()})

	s.notifyRole(ctx, identity.RoleGuide, appt, "A new appointment has been approved, you can accept it now!", "Appointment Approved")
	s.notifyUsers(ctx, []uuid.UUID{appt.UserID}, appt,
		"Your appointment has been confirmed for "+appt.when()+".", "Appointment Confirmed")
	return appt, nil
}

// Reject turns a request down. An already accepted visit loses its guide, who is
// told about it.
func (s *Service) Reject(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	appt, err := s.apply(ctx, id, ActionReject)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"by": actor.UserID.String(), "from": string(current.Status)}
	if current.GuideID != nil {
		payload["guide_id"] = current.GuideID.String()
	}
	s.logEvent(ctx, appt.ID, EventAppointmentRejected, payload)

	if current.GuideID != nil {
		s.notifyUsers(ctx, []uuid.UUID{*current.GuideID}, appt,
			"The appointment on "+appt.when()+" you accepted has been rejected by an admin.", "Appointment Rejected")
	}
	return appt, nil
}

// AssignGuide lets the calling guide claim an approved appointment. The write is
// conditional on the appointment still being approved and unassigned, so two
// guides racing for it cannot both win.
func (s *Service) AssignGuide(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	if !actor.Is(identity.RoleGuide) {
		return nil, ErrGuidesOnly
	}
	appt, err := s.repo.AssignGuide(ctx, id, actor.UserID)
	if err != nil {
		if !errors.Is(err, ErrStateChanged) {
			return nil, fmt.Errorf("assign guide: %w", err)
		}
		current, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.GuideID != nil {
			return nil, ErrAlreadyAssigned
		}
		return nil, invalidTransition(ActionAssign, current.Status)
	}

	s.logEvent(ctx, appt.ID, EventGuideAssigned, map[string]any{"guide_id": actor.UserID.String()})
	s.notifyUsers(ctx, []uuid.UUID{appt.UserID}, appt,
		"A guide has been assigned to your appointment on "+appt.when()+".", "Guide Assigned")
	return appt, nil
}

// UnassignGuide releases an accepted appointment back to the approved pool. A
// guide caller only releases it while they still hold it; admins release any guide.
func (s *Service) UnassignGuide(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitions[ActionUnassign].allows(current.Status) {
		return nil, invalidTransition(ActionUnassign, current.Status)
	}

	var holder *uuid.UUID
	if !actor.Is(identity.RoleAdmin) {
		if current.GuideID == nil || *current.GuideID != actor.UserID {
			return nil, ErrNotAssignedGuide
		}
		holder = &actor.UserID
	}

	appt, err := s.repo.ReleaseGuide(ctx, id, holder)
	if err != nil {
		if !errors.Is(err, ErrStateChanged) {
			return nil, fmt.Errorf("unassign guide: %w", err)
		}
		latest, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if latest.Status != StatusAccepted {
			return nil, invalidTransition(ActionUnassign, latest.Status)
		}
		return nil, ErrNotAssignedGuide
	}

	payload := map[string]any{"by": actor.UserID.String()}
	if current.GuideID != nil {
		payload["guide_id"] = current.GuideID.String()
	}
	s.logEvent(ctx, appt.ID, EventGuideUnassigned, payload)
	return appt, nil
}

// Cancel withdraws the caller's own request.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	current, err := s.GetOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	appt, err := s.apply(ctx, id, ActionCancel)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentCanceled, map[string]any{"from": string(current.Status)})

	msg := "The appointment on " + appt.when() + " has been canceled by the visitor."
	s.notifyRole(ctx, identity.RoleAdmin, appt, msg, "Appointment Canceled")
	if current.GuideID != nil {
		s.notifyUsers(ctx, []uuid.UUID{*current.GuideID}, appt, msg, "Appointment Canceled")
	}
	return appt, nil
}

// CompletePastAppointments is intended to be called by the worker periodically.
// Accepted appointments whose visit date is before today become completed.
func (s *Service) CompletePastAppointments(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindCompletable(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("find completable appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		if _, err := s.apply(ctx, appt.ID, ActionComplete); err != nil {
			if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to complete appointment %s: %v", appt.ID, err)
			}
			continue
		}
		completed++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{"reason": "worker"})
	}
	return completed, nil
}

// apply runs one entry of the transition table as a conditional update.
func (s *Service) apply(ctx context.Context, id uuid.UUID, action Action) (*Appointment, error) {
	t := transitions[action]
	appt, err := s.repo.Transition(ctx, id, t.from, t.to, t.clearGuide)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrStateChanged) {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%s appointment: %w", action, err)
	}
	current, getErr := s.repo.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, invalidTransition(action, current.Status)
}

type Patch struct {
	Date           *string
	Time           *string
	VisitorsNumber *int
	Note           *string
}

func (p Patch) empty() bool {
	return p.Date == nil && p.Time == nil && p.VisitorsNumber == nil && p.Note == nil
}

// applyTo copies the patch onto a and reports whether the slot moved.
func (p Patch) applyTo(a *Appointment) (bool, error) {
	moved := false
	if p.Date != nil {
		d, err := parseDate(*p.Date)
		if err != nil {
			return false, err
		}
		moved = moved || !d.Equal(a.Date)
		a.Date = d
	}
	if p.Time != nil {
		if !validSlot(*p.Time) {
			return false, ErrInvalidSlot
		}
		moved = moved || *p.Time != a.Time
		a.Time = *p.Time
	}
	if p.VisitorsNumber != nil {
		if *p.VisitorsNumber < 1 {
			return false, ErrInvalidVisitors
		}
		a.VisitorsNumber = *p.VisitorsNumber
	}
	if p.Note != nil {
		a.Note = p.Note
	}
	return moved, nil
}

// UpdateOwned lets the visitor edit a request that no admin has looked at yet.
func (s *Service) UpdateOwned(ctx context.Context, actor identity.Actor, id uuid.UUID, p Patch) (*Appointment, error) {
	if p.empty() {
		return nil, ErrEmptyPatch
	}
	appt, err := s.GetOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !containsStatus(editableStatuses, appt.Status) {
		return nil, fmt.Errorf("cannot edit an appointment that is %s: %w", appt.Status, ErrInvalidTransition)
	}
	moved, err := p.applyTo(appt)
	if err != nil {
		return nil, err
	}
	if moved && appt.Date.Before(s.today()) {
		return nil, ErrPastDate
	}

	if err := s.save(ctx, appt, moved, editableStatuses); err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentUpdated, map[string]any{"by": actor.UserID.String()})
	return appt, nil
}

type Override struct {
	Patch
	Status *string
}

// OverrideAppointment is the administrative escape hatch: it edits fields and
// status without consulting the transition table. The city is never editable and
// the guide reference is kept consistent with the resulting status.
func (s *Service) OverrideAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, o Override) (*Appointment, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	if o.Patch.empty() && o.Status == nil {
		return nil, ErrEmptyPatch
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := appt.Status

	moved, err := o.Patch.applyTo(appt)
	if err != nil {
		return nil, err
	}
	if o.Status != nil {
		st, err := ParseStatus(*o.Status)
		if err != nil {
			return nil, err
		}
		appt.Status = st
	}
	if !appt.Status.HasGuide() {
		appt.GuideID = nil
	} else if appt.GuideID == nil {
		return nil, ErrGuideRequired
	}

	recheck := moved || (!previous.HoldsSlot() && appt.Status.HoldsSlot())
	if err := s.save(ctx, appt, recheck, []Status{previous}); err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentOverridden, map[string]any{
		"by":   actor.UserID.String(),
		"from": string(previous),
		"to":   string(appt.Status),
	})
	return appt, nil
}

// SetStatus is OverrideAppointment restricted to the status field.
func (s *Service) SetStatus(ctx context.Context, actor identity.Actor, id uuid.UUID, status string) (*Appointment, error) {
	return s.OverrideAppointment(ctx, actor, id, Override{Status: &status})
}

// save writes appt while its stored status is one of from. When recheck is set
// and appt holds a slot, the write happens under the slot lock after an
// availability check.
func (s *Service) save(ctx context.Context, appt *Appointment, recheck bool, from []Status) error {
	write := func(ctx context.Context) error {
		if err := s.repo.Update(ctx, appt, from); err != nil {
			if errors.Is(err, ErrStateChanged) || errors.Is(err, ErrSlotBooked) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	}
	if !recheck || !appt.Status.HoldsSlot() {
		return write(ctx)
	}
	return s.withSlot(ctx, appt.slotKey(), func(lockCtx context.Context) error {
		taken, err := s.repo.SlotTaken(lockCtx, appt.Date, appt.Time, appt.ID)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotBooked
		}
		return write(lockCtx)
	})
}

// DeleteAppointment removes one of the caller's own appointments.
func (s *Service) DeleteAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	return s.repo.Delete(ctx, id, actor.UserID)
}

// GetOwned returns an appointment only to the visitor who requested it.
func (s *Service) GetOwned(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.UserID != actor.UserID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// GetAppointment applies the shared read policy: owners and admins always, guides
// once the appointment has been approved.
func (s *Service) GetAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, appt) {
		return nil, fmt.Errorf("appointment is not visible to this user: %w", apperr.ErrForbidden)
	}
	return appt, nil
}

func canRead(actor identity.Actor, appt *Appointment) bool {
	switch {
	case appt.UserID == actor.UserID, actor.Is(identity.RoleAdmin):
		return true
	case actor.Is(identity.RoleGuide):
		return containsStatus([]Status{StatusApproved, StatusAccepted, StatusCompleted}, appt.Status)
	}
	return false
}

// SchoolName returns the name of the school behind an appointment's visitor.
func (s *Service) SchoolName(ctx context.Context, actor identity.Actor, id uuid.UUID) (string, error) {
	appt, err := s.GetAppointment(ctx, actor, id)
	if err != nil {
		return "", err
	}
	sc, err := s.directory.OfUser(ctx, appt.UserID)
	if err != nil {
		return "", err
	}
	return sc.Name, nil
}

// ListMine retrieves the caller's appointments
func (s *Service) ListMine(ctx context.Context, actor identity.Actor, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	appts, err := s.repo.ListByUser(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by user: %w", err)
	}
	return appts, nil
}

func (s *Service) ListByStatus(ctx context.Context, actor identity.Actor, status string) ([]Appointment, error) {
	if !actor.Is(identity.RoleAdmin, identity.RoleGuide) {
		return nil, ErrStaffOnly
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	appts, err := s.repo.ListByStatus(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("list appointments by status: %w", err)
	}
	return appts, nil
}

// ListAvailableForGuides lists approved appointments no guide has claimed yet.
func (s *Service) ListAvailableForGuides(ctx context.Context, actor identity.Actor) ([]Appointment, error) {
	if !actor.Is(identity.RoleAdmin, identity.RoleGuide) {
		return nil, ErrStaffOnly
	}
	appts, err := s.repo.ListAvailableForGuides(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) ListAssigned(ctx context.Context, actor identity.Actor) ([]Appointment, error) {
	if !actor.Is(identity.RoleGuide) {
		return nil, ErrGuidesOnly
	}
	appts, err := s.repo.ListByGuide(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list assigned appointments: %w", err)
	}
	return appts, nil
}

// ListAdminQueue lists every appointment that still needs attention.
func (s *Service) ListAdminQueue(ctx context.Context, actor identity.Actor) ([]Appointment, error) {
	if !actor.Is(identity.RoleAdmin) {
		return nil, ErrAdminOnly
	}
	appts, err := s.repo.ListAdminQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admin appointments: %w", err)
	}
	return appts, nil
}

// AvailableTimes returns the daily slots not yet held by an appointment on date.
func (s *Service) AvailableTimes(ctx context.Context, date string) ([]string, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	booked, err := s.repo.BookedTimes(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}
	free := make([]string, 0, len(TimeSlots))
	for _, t := range TimeSlots {
		if !taken[t] {
			free = append(free, t)
		}
	}
	return free, nil
}

func (s *Service) withSlot(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBusy
	}
	return err
}

func (s *Service) notifyRole(ctx context.Context, role identity.Role, appt *Appointment, message, kind string) {
	id := appt.ID
	if _, err := s.notifier.NotifyRole(ctx, role, notification.Draft{AppointmentID: &id, Message: message, Type: kind}); err != nil {
		log.Printf("failed to notify role=%s appointment=%s type=%q: %v", role, appt.ID, kind, err)
	}
}

func (s *Service) notifyUsers(ctx context.Context, ids []uuid.UUID, appt *Appointment, message, kind string) {
	id := appt.ID
	if _, err := s.notifier.Notify(ctx, ids, notification.Draft{AppointmentID: &id, Message: message, Type: kind}); err != nil {
		log.Printf("failed to notify users appointment=%s type=%q: %v", appt.ID, kind, err)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
