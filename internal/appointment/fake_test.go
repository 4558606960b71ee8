package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/notification"
	redisclient "github.com/hackgods/school-visit-booking/internal/redis"
	"github.com/hackgods/school-visit-booking/internal/school"
)

type memRepo struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]*Appointment
	schools map[uuid.UUID]string // user -> school name, for joined listings
	events  []EventLog

	onGet func(id uuid.UUID) // runs after Get returns, with the lock released
}

func newMemRepo() *memRepo {
	return &memRepo{appts: map[uuid.UUID]*Appointment{}, schools: map[uuid.UUID]string{}}
}

func (m *memRepo) slotHeldLocked(date time.Time, slot string, exclude uuid.UUID) bool {
	for _, a := range m.appts {
		if a.ID != exclude && a.Status.HoldsSlot() && a.Date.Equal(date) && a.Time == slot {
			return true
		}
	}
	return false
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotHeldLocked(a.Date, a.Time, a.ID) {
		return ErrSlotBooked
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	a, ok := m.appts[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	hook := m.onGet
	m.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return &cp, nil
}

func (m *memRepo) SlotTaken(_ context.Context, date time.Time, slot string, exclude uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotHeldLocked(date, slot, exclude), nil
}

func (m *memRepo) BookedTimes(_ context.Context, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.appts {
		if a.Status.HoldsSlot() && a.Date.Equal(date) {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (m *memRepo) Transition(_ context.Context, id uuid.UUID, from []Status, to Status, clearGuide bool) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || !containsStatus(from, a.Status) {
		return nil, ErrStateChanged
	}
	if !a.Status.HoldsSlot() && to.HoldsSlot() && m.slotHeldLocked(a.Date, a.Time, a.ID) {
		return nil, ErrSlotBooked
	}
	a.Status = to
	if clearGuide {
		a.GuideID = nil
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) AssignGuide(_ context.Context, id, guideID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusApproved || a.GuideID != nil {
		return nil, ErrStateChanged
	}
	g := guideID
	a.GuideID = &g
	a.Status = StatusAccepted
	cp := *a
	return &cp, nil
}

func (m *memRepo) ReleaseGuide(_ context.Context, id uuid.UUID, guideID *uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusAccepted {
		return nil, ErrStateChanged
	}
	if guideID != nil && (a.GuideID == nil || *a.GuideID != *guideID) {
		return nil, ErrStateChanged
	}
	a.GuideID = nil
	a.Status = StatusApproved
	cp := *a
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, a *Appointment, from []Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok || !containsStatus(from, cur.Status) {
		return ErrStateChanged
	}
	if a.Status.HoldsSlot() && m.slotHeldLocked(a.Date, a.Time, a.ID) {
		return ErrSlotBooked
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id, ownerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.UserID != ownerID {
		return ErrAppointmentNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *memRepo) filter(keep func(*Appointment) bool) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if keep(a) {
			cp := *a
			cp.SchoolName = m.schools[a.UserID]
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *memRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	all := m.filter(func(a *Appointment) bool { return a.UserID == userID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memRepo) ListByStatus(_ context.Context, status Status) ([]Appointment, error) {
	return m.filter(func(a *Appointment) bool { return a.Status == status }), nil
}

func (m *memRepo) ListAvailableForGuides(context.Context) ([]Appointment, error) {
	return m.filter(func(a *Appointment) bool { return a.Status == StatusApproved && a.GuideID == nil }), nil
}

func (m *memRepo) ListByGuide(_ context.Context, guideID uuid.UUID) ([]Appointment, error) {
	return m.filter(func(a *Appointment) bool { return a.GuideID != nil && *a.GuideID == guideID }), nil
}

func (m *memRepo) ListAdminQueue(context.Context) ([]Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return a.Status != StatusCanceled && a.Status != StatusCompleted
	}), nil
}

func (m *memRepo) FindCompletable(_ context.Context, before time.Time) ([]Appointment, error) {
	return m.filter(func(a *Appointment) bool { return a.Status == StatusAccepted && a.Date.Before(before) }), nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

// sent is one fan-out the service requested.
type sent struct {
	role  identity.Role
	ids   []uuid.UUID
	draft notification.Draft
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, ids []uuid.UUID, draft notification.Draft) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{ids: ids, draft: draft})
	return len(ids), f.err
}

func (f *fakeNotifier) NotifyRole(_ context.Context, role identity.Role, draft notification.Draft) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{role: role, draft: draft})
	return 1, f.err
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.draft.Type
	}
	return out
}

func (f *fakeNotifier) toRole(role identity.Role) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.role == role {
			n++
		}
	}
	return n
}

type fakeDirectory map[uuid.UUID]*school.School

func (d fakeDirectory) OfUser(_ context.Context, userID uuid.UUID) (*school.School, error) {
	sc, ok := d[userID]
	if !ok {
		return nil, school.ErrNoSchool
	}
	return sc, nil
}

// keyLocker serializes callers per key in process.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	keys  []string
	busy  bool
}

func (l *keyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.keys = append(l.keys, key)
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
