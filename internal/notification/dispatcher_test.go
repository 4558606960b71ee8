package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/identity"
)

type memUser struct {
	Recipient
	role identity.Role
}

type memRepo struct {
	mu    sync.Mutex
	users []memUser
	rows  []Notification
	clock time.Time
}

func (m *memRepo) addUser(name string, role identity.Role) Recipient {
	rc := Recipient{ID: uuid.New(), Name: name, Email: strings.ToLower(name) + "@example.com"}
	m.users = append(m.users, memUser{Recipient: rc, role: role})
	return rc
}

func (m *memRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	n.CreatedAt = m.clock
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memRepo) Recipients(_ context.Context, ids []uuid.UUID) ([]Recipient, error) {
	var out []Recipient
	for _, u := range m.users {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u.Recipient)
			}
		}
	}
	return out, nil
}

func (m *memRepo) RecipientsByRole(_ context.Context, role identity.Role) ([]Recipient, error) {
	var out []Recipient
	for _, u := range m.users {
		if u.role == role {
			out = append(out, u.Recipient)
		}
	}
	return out, nil
}

func (m *memRepo) ListForRecipient(_ context.Context, recipientID uuid.UUID, f Filter) ([]Notification, error) {
	var out []Notification
	for _, n := range m.rows {
		if n.RecipientID != recipientID {
			continue
		}
		if f.Type != nil && n.Type != *f.Type {
			continue
		}
		if f.IsRead != nil && n.IsRead != *f.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) MarkRead(_ context.Context, id, recipientID uuid.UUID) error {
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].RecipientID == recipientID {
			m.rows[i].IsRead = true
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (m *memRepo) MarkAllRead(_ context.Context, recipientID uuid.UUID) (int, error) {
	n := 0
	for i := range m.rows {
		if m.rows[i].RecipientID == recipientID && !m.rows[i].IsRead {
			m.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Delete(_ context.Context, id, recipientID uuid.UUID) error {
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].RecipientID == recipientID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return ErrNotificationNotFound
}

type fakeSender struct {
	mu       sync.Mutex
	attempts []string
	failFor  map[string]bool
}

func (f *fakeSender) Send(_ context.Context, _ string, recipients []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, recipients...)
	for _, r := range recipients {
		if f.failFor[r] {
			return errors.New("mailbox unavailable")
		}
	}
	return nil
}

func countFor(rows []Notification, id uuid.UUID) int {
	n := 0
	for _, r := range rows {
		if r.RecipientID == id {
			n++
		}
	}
	return n
}

func TestNotifyRoleCreatesOneRowPerAdminDespiteEmailFailures(t *testing.T) {
	repo := &memRepo{}
	a1 := repo.addUser("Admin1", identity.RoleAdmin)
	a2 := repo.addUser("Admin2", identity.RoleAdmin)
	a3 := repo.addUser("Admin3", identity.RoleAdmin)
	repo.addUser("Guide", identity.RoleGuide)
	sender := &fakeSender{failFor: map[string]bool{a1.Email: true, a2.Email: true}}
	d := NewDispatcher(repo, sender, "contact@example.com")

	apptID := uuid.New()
	n, err := d.NotifyRole(context.Background(), identity.RoleAdmin, Draft{
		AppointmentID: &apptID, Message: "A new appointment has been made", Type: "New Appointment",
	})
	if err != nil {
		t.Fatalf("notify role: %v", err)
	}
	if n != 3 || len(repo.rows) != 3 {
		t.Fatalf("created %d (rows %d), want 3", n, len(repo.rows))
	}
	for _, a := range []Recipient{a1, a2, a3} {
		if countFor(repo.rows, a.ID) != 1 {
			t.Errorf("admin %s has %d notifications", a.Name, countFor(repo.rows, a.ID))
		}
	}
	if len(sender.attempts) != 3 {
		t.Errorf("email attempts = %d, want 3", len(sender.attempts))
	}
	for _, row := range repo.rows {
		if row.IsRead || row.AppointmentID == nil || *row.AppointmentID != apptID {
			t.Errorf("unexpected row %+v", row)
		}
	}
}

func TestNotifyRoleWithoutUsers(t *testing.T) {
	repo := &memRepo{}
	d := NewDispatcher(repo, &fakeSender{}, "contact@example.com")
	n, err := d.NotifyRole(context.Background(), identity.RoleGuide, Draft{Message: "m", Type: "t"})
	if err != nil || n != 0 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}

func TestNotifyDedupesAndSkipsUnknown(t *testing.T) {
	repo := &memRepo{}
	v := repo.addUser("Visitor", identity.RoleVisitor)
	sender := &fakeSender{}
	d := NewDispatcher(repo, sender, "contact@example.com")

	n, err := d.Notify(context.Background(), []uuid.UUID{v.ID, v.ID, uuid.New()}, Draft{Message: "m", Type: "t"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n != 1 || len(sender.attempts) != 1 {
		t.Fatalf("n=%d attempts=%d, want 1/1", n, len(sender.attempts))
	}
}

func TestReadStateScopedToRecipient(t *testing.T) {
	repo := &memRepo{}
	me := repo.addUser("Me", identity.RoleVisitor)
	other := repo.addUser("Other", identity.RoleVisitor)
	d := NewDispatcher(repo, &fakeSender{}, "contact@example.com")
	ctx := context.Background()

	if _, err := d.Notify(ctx, []uuid.UUID{me.ID, other.ID}, Draft{Message: "one", Type: "Appointment Created"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Notify(ctx, []uuid.UUID{me.ID}, Draft{Message: "two", Type: "Appointment Confirmed"}); err != nil {
		t.Fatal(err)
	}
	meActor := identity.Actor{UserID: me.ID, Role: identity.RoleVisitor}
	otherActor := identity.Actor{UserID: other.ID, Role: identity.RoleVisitor}

	mine, err := d.List(ctx, meActor, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].Message != "two" {
		t.Fatalf("list should be newest first: %+v", mine)
	}

	theirs, _ := d.List(ctx, otherActor, Filter{})
	if err := d.MarkRead(ctx, meActor, theirs[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("marking someone else's notification: got %v", err)
	}
	if err := d.Delete(ctx, meActor, theirs[0].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("deleting someone else's notification: got %v", err)
	}

	if err := d.MarkRead(ctx, meActor, mine[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread := false
	left, _ := d.List(ctx, meActor, Filter{IsRead: &unread})
	if len(left) != 1 || left[0].Message != "one" {
		t.Fatalf("unread filter: %+v", left)
	}

	kind := "Appointment Created"
	byType, _ := d.List(ctx, meActor, Filter{Type: &kind})
	if len(byType) != 1 {
		t.Errorf("type filter: %+v", byType)
	}

	n, err := d.MarkAllRead(ctx, meActor)
	if err != nil || n != 1 {
		t.Errorf("mark all: n=%d err=%v", n, err)
	}
	if left, _ := d.List(ctx, otherActor, Filter{IsRead: &unread}); len(left) != 1 {
		t.Errorf("other user's unread changed: %+v", left)
	}

	if err := d.Delete(ctx, meActor, mine[0].ID); err != nil {
		t.Errorf("delete own: %v", err)
	}
}

func TestCreateRequiresAdminAndSurfacesEmailError(t *testing.T) {
	repo := &memRepo{}
	v := repo.addUser("Visitor", identity.RoleVisitor)
	sender := &fakeSender{failFor: map[string]bool{v.Email: true}}
	d := NewDispatcher(repo, sender, "contact@example.com")
	ctx := context.Background()
	draft := Draft{Message: "hello", Type: "info"}

	if _, err := d.Create(ctx, identity.Actor{Role: identity.RoleGuide}, v.ID, draft); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("guide create: got %v", err)
	}

	admin := identity.Actor{UserID: uuid.New(), Role: identity.RoleAdmin}
	if _, err := d.Create(ctx, admin, uuid.New(), draft); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("unknown recipient: got %v", err)
	}
	if _, err := d.Create(ctx, admin, v.ID, Draft{Type: "info"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty message: got %v", err)
	}

	n, err := d.Create(ctx, admin, v.ID, draft)
	if err == nil {
		t.Fatal("expected email error")
	}
	if n == nil || len(repo.rows) != 1 {
		t.Fatalf("row should be kept: n=%v rows=%d", n, len(repo.rows))
	}
}

func TestBroadcastToGuides(t *testing.T) {
	repo := &memRepo{}
	repo.addUser("G1", identity.RoleGuide)
	repo.addUser("G2", identity.RoleGuide)
	repo.addUser("V", identity.RoleVisitor)
	d := NewDispatcher(repo, &fakeSender{}, "contact@example.com")

	if _, err := d.BroadcastToGuides(context.Background(), identity.Actor{Role: identity.RoleVisitor}, "m", "t"); !errors.Is(err, ErrAdminOnly) {
		t.Fatalf("visitor broadcast: got %v", err)
	}
	n, err := d.BroadcastToGuides(context.Background(), identity.Actor{Role: identity.RoleAdmin}, "Staff meeting", "Announcement")
	if err != nil || n != 2 {
		t.Fatalf("broadcast: n=%d err=%v", n, err)
	}
	for _, row := range repo.rows {
		if row.AppointmentID != nil {
			t.Errorf("broadcast should not reference an appointment")
		}
	}
}

func TestContact(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(&memRepo{}, sender, "contact@example.com")

	if err := d.Contact(context.Background(), "Ali", "ali@example.com", "<b>hi</b>"); err != nil {
		t.Fatalf("contact: %v", err)
	}
	if len(sender.attempts) != 1 || sender.attempts[0] != "contact@example.com" {
		t.Fatalf("attempts = %v", sender.attempts)
	}
	if err := d.Contact(context.Background(), "", "ali@example.com", "hi"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing name: got %v", err)
	}

	sender.failFor = map[string]bool{"contact@example.com": true}
	if err := d.Contact(context.Background(), "Ali", "ali@example.com", "hi"); err == nil {
		t.Error("expected send failure to surface")
	}
}

func TestRenderBodyEscapes(t *testing.T) {
	body := renderBody("<Ali>", "a & b")
	if strings.Contains(body, "<Ali>") || !strings.Contains(body, "a &amp; b") {
		t.Errorf("body not escaped: %s", body)
	}
}
