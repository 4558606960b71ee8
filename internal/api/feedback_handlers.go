package api

import (
	"net/http"

	"github.com/hackgods/school-visit-booking/internal/feedback"
)

func submitFeedbackHandler(svc FeedbackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedbackRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		appointmentID, err := parseOptionalUUID(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}
		fb, err := svc.Submit(r.Context(), mustActor(r), feedback.Input{
			Rating:        req.Rating,
			Comment:       req.Comment,
			AppointmentID: appointmentID,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toFeedbackResponse(fb))
	}
}

func listFeedbackHandler(svc FeedbackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), mustActor(r))
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]FeedbackResponse, 0, len(list))
		for i := range list {
			out = append(out, toFeedbackResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
