package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/notification"
)

type CountResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// listNotificationsHandler lists the caller's notifications. With filtered set it
// honours the type and is_read query parameters.
func listNotificationsHandler(svc NotificationService, filtered bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f notification.Filter
		if filtered {
			q := r.URL.Query()
			if t := q.Get("type"); t != "" {
				f.Type = &t
			}
			if raw := q.Get("is_read"); raw != "" {
				b, err := strconv.ParseBool(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_is_read", "is_read must be true or false")
					return
				}
				f.IsRead = &b
			}
		}

		list, err := svc.List(r.Context(), mustActor(r), f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]NotificationResponse, 0, len(list))
		for i := range list {
			out = append(out, toNotificationResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func markReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.MarkRead(r.Context(), mustActor(r), id); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Notification marked as read"})
	}
}

func markAllReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.MarkAllRead(r.Context(), mustActor(r))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Message: "All notifications marked as read", Count: n})
	}
}

// createNotificationHandler reports an email failure as 502 even though the row
// was stored.
func createNotificationHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNotificationRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		recipientID, err := uuid.Parse(req.RecipientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_recipient_id", "recipient_id must be a valid UUID")
			return
		}
		appointmentID, err := parseOptionalUUID(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		n, err := svc.Create(r.Context(), mustActor(r), recipientID, notification.Draft{
			AppointmentID: appointmentID,
			Message:       req.Message,
			Type:          req.Type,
		})
		if err != nil {
			if n != nil {
				log.Printf("notification stored without email notification_id=%s: %v", n.ID, err)
			}
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toNotificationResponse(n))
	}
}

func customGuideNotificationHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CustomNotificationRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		n, err := svc.BroadcastToGuides(r.Context(), mustActor(r), req.Message, req.NotificationType)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, CountResponse{Message: "Notification sent to all guides", Count: n})
	}
}

func deleteNotificationHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), mustActor(r), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func contactHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ContactRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if err := svc.Contact(r.Context(), req.SenderName, req.SenderEmail, req.Message); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Your message has been sent"})
	}
}
