package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/feedback"
	"github.com/hackgods/school-visit-booking/internal/identity"
	"github.com/hackgods/school-visit-booking/internal/notification"
	"github.com/hackgods/school-visit-booking/internal/school"
)

// Requests

type RegisterRequest struct {
	UserEmail string  `json:"user_email" validate:"required,email"`
	Role      string  `json:"role" validate:"required,oneof=visitor guide admin"`
	Name      string  `json:"name" validate:"required,max=100"`
	SchoolID  *string `json:"school_id" validate:"omitempty,uuid"`
	Password  string  `json:"password" validate:"required,min=8"`
}

type LoginForm struct {
	Username string `validate:"required,email"`
	Password string `validate:"required"`
}

type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type UpdateUserRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	UserEmail *string `json:"user_email" validate:"omitempty,email"`
	Password  *string `json:"password" validate:"omitempty,min=8"`
}

type ResetPasswordRequest struct {
	UserEmail   string `json:"user_email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type CreateAppointmentRequest struct {
	Date           string  `json:"date" validate:"required"`
	Time           string  `json:"time" validate:"required"`
	VisitorsNumber int     `json:"visitors_number" validate:"required,min=1"`
	Note           *string `json:"note" validate:"omitempty,max=1000"`
}

type UpdateAppointmentRequest struct {
	Date           *string `json:"date"`
	Time           *string `json:"time"`
	VisitorsNumber *int    `json:"visitors_number" validate:"omitempty,min=1"`
	Note           *string `json:"note" validate:"omitempty,max=1000"`
}

func (req UpdateAppointmentRequest) patch() appointment.Patch {
	return appointment.Patch{
		Date:           req.Date,
		Time:           req.Time,
		VisitorsNumber: req.VisitorsNumber,
		Note:           req.Note,
	}
}

type OverrideAppointmentRequest struct {
	UpdateAppointmentRequest
	Status *string `json:"status"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CreateNotificationRequest struct {
	RecipientID   string  `json:"recipient_id" validate:"required,uuid"`
	AppointmentID *string `json:"appointment_id" validate:"omitempty,uuid"`
	Message       string  `json:"message" validate:"required"`
	Type          string  `json:"type" validate:"required,max=50"`
}

type CustomNotificationRequest struct {
	Message          string `json:"message" validate:"required"`
	NotificationType string `json:"notification_type" validate:"required,max=50"`
}

type SchoolRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	City string `json:"city" validate:"required,max=255"`
}

type FeedbackRequest struct {
	Rating        int     `json:"rating" validate:"required,min=1,max=5"`
	Comment       *string `json:"comment" validate:"omitempty,max=2000"`
	AppointmentID *string `json:"appointment_id" validate:"omitempty,uuid"`
}

type ContactRequest struct {
	SenderName  string `json:"sender_name" validate:"required,max=100"`
	SenderEmail string `json:"sender_email" validate:"required,email"`
	Message     string `json:"message" validate:"required,max=5000"`
}

// Responses

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	UserEmail   string `json:"user_email"`
}

type UserResponse struct {
	UserID    uuid.UUID  `json:"user_id"`
	Name      string     `json:"name"`
	UserEmail string     `json:"user_email"`
	Role      string     `json:"role"`
	SchoolID  *uuid.UUID `json:"school_id"`
}

func toUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		UserID:    u.ID,
		Name:      u.Name,
		UserEmail: u.Email,
		Role:      string(u.Role),
		SchoolID:  u.SchoolID,
	}
}

type UpdateUserResponse struct {
	Message     string       `json:"message"`
	UpdatedUser UserResponse `json:"updated_user"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	GuideID        *uuid.UUID `json:"guide_id"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	City           string     `json:"city"`
	VisitorsNumber int        `json:"visitors_number"`
	Note           *string    `json:"note"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	SchoolName     string     `json:"school_name,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		GuideID:        a.GuideID,
		Date:           a.Date.Format(appointment.DateLayout),
		Time:           a.Time,
		City:           a.City,
		VisitorsNumber: a.VisitorsNumber,
		Note:           a.Note,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		SchoolName:     a.SchoolName,
	}
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

type SchoolNameResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SchoolName    string    `json:"school_name"`
}

type NotificationResponse struct {
	ID            uuid.UUID  `json:"id"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	Message       string     `json:"message"`
	Type          string     `json:"type"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toNotificationResponse(n *notification.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		AppointmentID: n.AppointmentID,
		Message:       n.Message,
		Type:          n.Type,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt,
	}
}

type SchoolResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	City string    `json:"city"`
}

func toSchoolResponse(s *school.School) SchoolResponse {
	return SchoolResponse{ID: s.ID, Name: s.Name, City: s.City}
}

type FeedbackResponse struct {
	ID            uuid.UUID  `json:"id"`
	Rating        int        `json:"rating"`
	Comment       *string    `json:"comment"`
	CreatedAt     time.Time  `json:"created_at"`
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
}

func toFeedbackResponse(f *feedback.Feedback) FeedbackResponse {
	return FeedbackResponse{
		ID:            f.ID,
		Rating:        f.Rating,
		Comment:       f.Comment,
		CreatedAt:     f.CreatedAt,
		UserID:        f.UserID,
		AppointmentID: f.AppointmentID,
	}
}
