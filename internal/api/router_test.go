package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/mail"
	"github.com/hackgods/school-visit-booking/internal/notification"
)

var (
	visitor = identity.Actor{UserID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Name: "Vera", Role: identity.RoleVisitor}
	admin   = identity.Actor{UserID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Name: "Ada", Role: identity.RoleAdmin}
)

// Stubs embed the interface so calling an unstubbed method panics.

type stubIdentity struct {
	IdentityService
	registeredBy *identity.Actor
	registered   identity.RegisterInput
}

func (s *stubIdentity) Authorize(_ context.Context, raw string) (identity.Actor, error) {
	switch raw {
	case "visitor-token":
		return visitor, nil
	case "admin-token":
		return admin, nil
	case "gone-token":
		return identity.Actor{}, identity.ErrUserNotFound
	}
	return identity.Actor{}, identity.ErrInvalidToken
}

func (s *stubIdentity) Register(_ context.Context, caller *identity.Actor, in identity.RegisterInput) (*identity.User, error) {
	s.registeredBy = caller
	s.registered = in
	return &identity.User{ID: uuid.New(), Name: in.Name, Email: in.Email, Role: identity.Role(in.Role), SchoolID: in.SchoolID}, nil
}

func (s *stubIdentity) Login(_ context.Context, email, password string) (*identity.Session, error) {
	if password != "abcd1234" {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.Session{
		Token:     "signed",
		ExpiresAt: time.Now().Add(30 * time.Minute),
		User:      &identity.User{Name: "Vera", Email: email, Role: identity.RoleVisitor},
	}, nil
}

type stubAppointments struct {
	AppointmentService
	err         error
	created     appointment.CreateInput
	createdBy   identity.Actor
	limit, skip int
	overridden  bool
}

func (s *stubAppointments) CreateAppointment(_ context.Context, actor identity.Actor, in appointment.CreateInput) (*appointment.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created, s.createdBy = in, actor
	date, _ := time.Parse(appointment.DateLayout, in.Date)
	return &appointment.Appointment{
		ID:             uuid.New(),
		UserID:         actor.UserID,
		Date:           date,
		Time:           in.Time,
		City:           "Ankara",
		VisitorsNumber: in.VisitorsNumber,
		Status:         appointment.StatusCreated,
	}, nil
}

// The router binds these as method values, so each must exist on the stub.

func (s *stubAppointments) moved(id uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Appointment{ID: id, Status: to}, nil
}

func (s *stubAppointments) Approve(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusApproved)
}

func (s *stubAppointments) Reject(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusRejected)
}

func (s *stubAppointments) AssignGuide(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusAccepted)
}

func (s *stubAppointments) UnassignGuide(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusApproved)
}

func (s *stubAppointments) Cancel(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusCanceled)
}

func (s *stubAppointments) GetAppointment(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusApproved)
}

func (s *stubAppointments) GetOwned(_ context.Context, _ identity.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return s.moved(id, appointment.StatusCreated)
}

func (s *stubAppointments) ListAvailableForGuides(context.Context, identity.Actor) ([]appointment.Appointment, error) {
	return nil, s.err
}

func (s *stubAppointments) ListAssigned(context.Context, identity.Actor) ([]appointment.Appointment, error) {
	return nil, s.err
}

func (s *stubAppointments) ListAdminQueue(context.Context, identity.Actor) ([]appointment.Appointment, error) {
	return nil, s.err
}

func (s *stubAppointments) OverrideAppointment(_ context.Context, _ identity.Actor, id uuid.UUID, o appointment.Override) (*appointment.Appointment, error) {
	s.overridden = true
	return &appointment.Appointment{ID: id, Status: appointment.Status(*o.Status)}, nil
}

func (s *stubAppointments) ListMine(_ context.Context, _ identity.Actor, limit, offset int) ([]appointment.Appointment, error) {
	s.limit, s.skip = limit, offset
	return nil, nil
}

func (s *stubAppointments) AvailableTimes(_ context.Context, date string) ([]string, error) {
	if date == "not-a-date" {
		return nil, appointment.ErrInvalidDate
	}
	return []string{"13:00:00"}, nil
}

type stubNotifications struct {
	NotificationService
	filter   notification.Filter
	contacts int
	err      error
}

func (s *stubNotifications) List(_ context.Context, _ identity.Actor, f notification.Filter) ([]notification.Notification, error) {
	s.filter = f
	return []notification.Notification{}, nil
}

func (s *stubNotifications) Contact(context.Context, string, string, string) error {
	s.contacts++
	return s.err
}

type stubSchools struct{ SchoolService }

type stubFeedback struct{ FeedbackService }

type pingResult struct{ err error }

func (p pingResult) Ping(context.Context) error { return p.err }

type fixture struct {
	handler       http.Handler
	identity      *stubIdentity
	appointments  *stubAppointments
	notifications *stubNotifications
}

func newFixture(t *testing.T, limiter *RateLimiter) *fixture {
	t.Helper()
	f := &fixture{
		identity:      &stubIdentity{},
		appointments:  &stubAppointments{},
		notifications: &stubNotifications{},
	}
	f.handler = NewRouter(RouterConfig{
		Identity:      f.identity,
		Appointments:  f.appointments,
		Notifications: f.notifications,
		Schools:       stubSchools{},
		Feedback:      stubFeedback{},
		Postgres:      pingResult{},
		Redis:         pingResult{},
		Limiter:       limiter,
		CORSOrigin:    "http://localhost:3000",
		Env:           "test",
		Version:       "v0",
	})
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"invalid", "forged"},
		{"deleted user", "gone-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/appointment", tt.token, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/create-appointment", "visitor-token",
		`{"date":"2026-03-10","time":"10:00:00","visitors_number":25,"note":"two classes"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if f.appointments.createdBy != visitor {
		t.Errorf("actor not forwarded: %+v", f.appointments.createdBy)
	}
	if in := f.appointments.created; in.VisitorsNumber != 25 || in.Note == nil || *in.Note != "two classes" {
		t.Errorf("input not forwarded: %+v", in)
	}

	var resp AppointmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Date != "2026-03-10" || resp.Status != "created" || resp.City != "Ankara" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCreateAppointmentRejectsBadBodies(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name, body, code string
	}{
		{"malformed", `{"date":`, "invalid_request_body"},
		{"no visitors", `{"date":"2026-03-10","time":"10:00:00","visitors_number":0}`, "validation_failed"},
		{"missing time", `{"date":"2026-03-10","visitors_number":3}`, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/create-appointment", "visitor-token", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec).Error; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", appointment.ErrAdminOnly, http.StatusForbidden, "forbidden"},
		{"conflict", appointment.ErrSlotBooked, http.StatusConflict, "conflict"},
		{"transition", fmt.Errorf("approve from completed: %w", apperr.ErrInvalidTransition), http.StatusConflict, "invalid_status_transition"},
		{"validation", appointment.ErrInvalidSlot, http.StatusBadRequest, "validation_failed"},
		{"email", fmt.Errorf("send: %w", mail.ErrDelivery), http.StatusBadGateway, "email_failed"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.appointments.err = tt.err

			rec := f.do(http.MethodPut, "/appointments/"+uuid.NewString()+"/approve", "admin-token", "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.code {
				t.Errorf("code = %q, want %q", resp.Error, tt.code)
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(resp.Details, "connection reset") {
				t.Error("internal error details leaked")
			}
		})
	}
}

func TestInvalidIDParam(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPut, "/appointments/abc/approve", "admin-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "invalid_id" {
		t.Errorf("code = %q", got)
	}
}

func TestOverrideRejectsCity(t *testing.T) {
	f := newFixture(t, nil)
	path := "/appointments/" + uuid.NewString()

	rec := f.do(http.MethodPut, path, "admin-token", `{"city":"Izmir"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.appointments.overridden {
		t.Fatal("service called for unknown field")
	}

	rec = f.do(http.MethodPut, path, "admin-token", `{"status":"approved","visitors_number":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !f.appointments.overridden {
		t.Fatal("override not forwarded")
	}
}

func TestListMinePaging(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/appointment?skip=20&limit=5", "visitor-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.appointments.skip != 20 || f.appointments.limit != 5 {
		t.Errorf("skip=%d limit=%d", f.appointments.skip, f.appointments.limit)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list should encode as [], got %s", rec.Body)
	}

	if rec := f.do(http.MethodGet, "/appointment?skip=-1", "visitor-token", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative skip status = %d, want 400", rec.Code)
	}
}

func TestAvailableTimesIsPublic(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/appointments/available-times/2026-03-10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var times []string
	if err := json.NewDecoder(rec.Body).Decode(&times); err != nil {
		t.Fatal(err)
	}
	if len(times) != 1 || times[0] != "13:00:00" {
		t.Errorf("times = %v", times)
	}

	if rec := f.do(http.MethodGet, "/appointments/available-times/not-a-date", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)

	login := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := login(url.Values{"username": {"vera@example.com"}, "password": {"abcd1234"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken != "signed" || resp.TokenType != "bearer" || resp.Role != "visitor" || resp.UserEmail != "vera@example.com" {
		t.Errorf("unexpected login response %+v", resp)
	}

	if rec := login(url.Values{"username": {"vera@example.com"}, "password": {"nope"}}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}
	if rec := login(url.Values{"password": {"abcd1234"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing username status = %d, want 400", rec.Code)
	}
}

func TestRegisterCallerIsOptional(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"user_email":"g@example.com","role":"guide","name":"Gus","password":"abcd1234"}`

	if rec := f.do(http.MethodPost, "/auth/register", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("anonymous status = %d, body %s", rec.Code, rec.Body)
	}
	if f.identity.registeredBy != nil {
		t.Error("anonymous registration carried a caller")
	}

	if rec := f.do(http.MethodPost, "/auth/register", "admin-token", body); rec.Code != http.StatusCreated {
		t.Fatalf("admin status = %d", rec.Code)
	}
	if f.identity.registeredBy == nil || *f.identity.registeredBy != admin {
		t.Errorf("caller = %+v, want admin", f.identity.registeredBy)
	}

	if rec := f.do(http.MethodPost, "/auth/register", "forged", body); rec.Code != http.StatusUnauthorized {
		t.Errorf("forged token status = %d, want 401", rec.Code)
	}

	bad := `{"user_email":"g@example.com","role":"visitor","name":"Gus","password":"abcd1234","school_id":"nope"}`
	if rec := f.do(http.MethodPost, "/auth/register", "", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("bad school id status = %d, want 400", rec.Code)
	}
}

func TestNotificationFilter(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/notifications/filter?type=Reminder&is_read=false", "visitor-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := f.notifications.filter
	if got.Type == nil || *got.Type != "Reminder" || got.IsRead == nil || *got.IsRead {
		t.Errorf("filter = %+v", got)
	}

	if rec := f.do(http.MethodGet, "/notifications/filter?is_read=maybe", "visitor-token", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad is_read status = %d, want 400", rec.Code)
	}

	f.do(http.MethodGet, "/notifications/hi?type=Reminder", "visitor-token", "")
	if f.notifications.filter.Type != nil {
		t.Error("plain listing should ignore filters")
	}
}

func TestContactEmailFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.notifications.err = fmt.Errorf("contact: %w", mail.ErrDelivery)

	rec := f.do(http.MethodPost, "/contact", "", `{"sender_name":"Zed","sender_email":"zed@example.com","message":"hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestRateLimitedEndpoints(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	t.Cleanup(limiter.Stop)
	f := newFixture(t, limiter)
	body := `{"sender_name":"Zed","sender_email":"zed@example.com","message":"hello"}`

	if rec := f.do(http.MethodPost, "/contact", "", body); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/contact", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if got := decodeError(t, rec).Error; got != "rate_limited" {
		t.Errorf("code = %q", got)
	}
	if f.notifications.contacts != 1 {
		t.Errorf("contacts = %d, want 1", f.notifications.contacts)
	}

	// Authenticated routes are not throttled.
	for i := 0; i < 3; i++ {
		if rec := f.do(http.MethodGet, "/appointment", "visitor-token", ""); rec.Code != http.StatusOK {
			t.Fatalf("authenticated request %d status = %d", i, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/create-appointment", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow credentials = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestAccessLogNamesCaller(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if rec := f.do(http.MethodGet, "/appointment", "visitor-token", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "user="+visitor.UserID.String()) {
		t.Errorf("access log misses caller: %q", buf.String())
	}

	buf.Reset()
	f.do(http.MethodGet, "/health/live", "", "")
	if !strings.Contains(buf.String(), "user=-") {
		t.Errorf("anonymous request logged a caller: %q", buf.String())
	}
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}

	rec = f.do(http.MethodGet, "/health/live", "", "")
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("generated request id is not a uuid: %v", err)
	}
}

func TestReadiness(t *testing.T) {
	down := pingResult{err: errors.New("dial tcp: refused")}
	tests := []struct {
		name    string
		pg, rdb Pinger
		status  int
		state   string
	}{
		{"all up", pingResult{}, pingResult{}, http.StatusOK, "ok"},
		{"redis down", pingResult{}, down, http.StatusOK, "degraded"},
		{"postgres down", down, pingResult{}, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.rdb, "test", "v0")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.state {
				t.Errorf("state = %q, want %q", resp.Status, tt.state)
			}
		})
	}
}

func TestRecoversFromHandlerPanic(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/schools", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
