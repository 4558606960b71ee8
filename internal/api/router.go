package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/feedback"
	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/notification"
	"github.com/hackgods/school-visit-booking/internal/school"
)

type IdentityService interface {
	Authorizer
	Register(ctx context.Context, caller *identity.Actor, in identity.RegisterInput) (*identity.User, error)
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	UpdateUser(ctx context.Context, actor identity.Actor, p identity.UserPatch) (*identity.User, error)
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, newPassword string) error
}

type AppointmentService interface {
	CreateAppointment(ctx context.Context, actor identity.Actor, in appointment.CreateInput) (*appointment.Appointment, error)
	Approve(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Reject(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	AssignGuide(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	UnassignGuide(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	UpdateOwned(ctx context.Context, actor identity.Actor, id uuid.UUID, p appointment.Patch) (*appointment.Appointment, error)
	OverrideAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, o appointment.Override) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, actor identity.Actor, id uuid.UUID, status string) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) error
	GetOwned(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	SchoolName(ctx context.Context, actor identity.Actor, id uuid.UUID) (string, error)
	ListMine(ctx context.Context, actor identity.Actor, limit, offset int) ([]appointment.Appointment, error)
	ListByStatus(ctx context.Context, actor identity.Actor, status string) ([]appointment.Appointment, error)
	ListAvailableForGuides(ctx context.Context, actor identity.Actor) ([]appointment.Appointment, error)
	ListAssigned(ctx context.Context, actor identity.Actor) ([]appointment.Appointment, error)
	ListAdminQueue(ctx context.Context, actor identity.Actor) ([]appointment.Appointment, error)
	AvailableTimes(ctx context.Context, date string) ([]string, error)
}

type NotificationService interface {
	Create(ctx context.Context, actor identity.Actor, recipientID uuid.UUID, draft notification.Draft) (*notification.Notification, error)
	BroadcastToGuides(ctx context.Context, actor identity.Actor, message, kind string) (int, error)
	List(ctx context.Context, actor identity.Actor, f notification.Filter) ([]notification.Notification, error)
	MarkRead(ctx context.Context, actor identity.Actor, id uuid.UUID) error
	MarkAllRead(ctx context.Context, actor identity.Actor) (int, error)
	Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error
	Contact(ctx context.Context, senderName, senderEmail, message string) error
}

type SchoolService interface {
	List(ctx context.Context) ([]school.School, error)
	Get(ctx context.Context, id uuid.UUID) (*school.School, error)
	Create(ctx context.Context, actor identity.Actor, in school.Input) (*school.School, error)
	Update(ctx context.Context, actor identity.Actor, id uuid.UUID, in school.Input) (*school.School, error)
	Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error
}

type FeedbackService interface {
	Submit(ctx context.Context, actor identity.Actor, in feedback.Input) (*feedback.Feedback, error)
	List(ctx context.Context, actor identity.Actor) ([]feedback.Feedback, error)
}

type RouterConfig struct {
	Identity      IdentityService
	Appointments  AppointmentService
	Notifications NotificationService
	Schools       SchoolService
	Feedback      FeedbackService
	Postgres      Pinger
	Redis         Pinger
	Limiter       *RateLimiter // throttles public auth and contact endpoints; nil disables
	CORSOrigin    string
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.CORSOrigin))

	throttle := func(next http.Handler) http.Handler { return next }
	if cfg.Limiter != nil {
		throttle = cfg.Limiter.Middleware
	}

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public endpoints
	r.Group(func(r chi.Router) {
		r.Use(throttle)
		r.With(OptionalAuth(cfg.Identity)).Post("/auth/register", registerHandler(cfg.Identity))
		r.Post("/auth/login", loginHandler(cfg.Identity))
		r.Post("/auth/send_otp", sendOTPHandler(cfg.Identity))
		r.Post("/auth/verify_otp", verifyOTPHandler(cfg.Identity))
		r.Patch("/auth/reset_password", resetPasswordHandler(cfg.Identity))
		r.Post("/contact", contactHandler(cfg.Notifications))
	})
	r.Get("/schools", listSchoolsHandler(cfg.Schools))
	r.Get("/appointments/available-times/{date}", availableTimesHandler(cfg.Appointments))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.Identity))

		r.Patch("/auth/update_user", updateUserHandler(cfg.Identity))

		// Visitor-owned appointments
		r.Post("/create-appointment", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointment", listMyAppointmentsHandler(cfg.Appointments))
		r.Get("/appointment/{id}/school", schoolNameHandler(cfg.Appointments))

		// Staff views and lifecycle actions
		r.Get("/guides/available-appointments", listAvailableHandler(cfg.Appointments))
		r.Get("/guide/appointments", listAssignedHandler(cfg.Appointments))
		r.Get("/admin/appointments", listAdminQueueHandler(cfg.Appointments))
		r.Get("/appointments/status/{status}", listByStatusHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Put("/appointments/{id}", overrideAppointmentHandler(cfg.Appointments))
		r.Put("/appointments/{id}/approve", actionHandler(cfg.Appointments.Approve))
		r.Put("/appointments/{id}/reject", actionHandler(cfg.Appointments.Reject))
		r.Put("/appointments/{id}/assign-guide", actionHandler(cfg.Appointments.AssignGuide))
		r.Put("/appointments/{id}/unassign-guide", actionHandler(cfg.Appointments.UnassignGuide))
		r.Put("/appointments/{id}/cancel", actionHandler(cfg.Appointments.Cancel))
		r.Put("/appointments/{id}/status", setStatusHandler(cfg.Appointments))

		// Notifications
		r.Get("/notifications/hi", listNotificationsHandler(cfg.Notifications, false))
		r.Get("/notifications/filter", listNotificationsHandler(cfg.Notifications, true))
		r.Put("/notifications/read-all", markAllReadHandler(cfg.Notifications))
		r.Put("/notifications/{id}/read", markReadHandler(cfg.Notifications))
		r.Post("/notifications", createNotificationHandler(cfg.Notifications))
		r.Post("/notifications/custom-guide-notification", customGuideNotificationHandler(cfg.Notifications))
		r.Delete("/notifications/{id}", deleteNotificationHandler(cfg.Notifications))

		// Schools
		r.Post("/schools", createSchoolHandler(cfg.Schools))
		r.Get("/schools/{id}", getSchoolHandler(cfg.Schools))
		r.Put("/schools/{id}", updateSchoolHandler(cfg.Schools))
		r.Delete("/schools/{id}", deleteSchoolHandler(cfg.Schools))

		// Feedback
		r.Post("/feedback/submit", submitFeedbackHandler(cfg.Feedback))
		r.Get("/feedback/list", listFeedbackHandler(cfg.Feedback))

		// Owner-scoped appointment shortcuts
		r.Get("/{id}", getOwnedAppointmentHandler(cfg.Appointments))
		r.Put("/{id}", updateOwnedAppointmentHandler(cfg.Appointments))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Appointments))
	})

	return r
}
