package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/appointment"
	"github.com/hackgods/school-visit-booking/internal/identity"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		appt, err := svc.CreateAppointment(r.Context(), mustActor(r), appointment.CreateInput{
			Date:           req.Date,
			Time:           req.Time,
			VisitorsNumber: req.VisitorsNumber,
			Note:           req.Note,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listMyAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, ok := queryInt(w, r, "skip")
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		list, err := svc.ListMine(r.Context(), mustActor(r), limit, skip)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

// queryInt reads a non-negative integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

type listFunc func(ctx context.Context, actor identity.Actor) ([]appointment.Appointment, error)

func listHandler(list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := list(r.Context(), mustActor(r))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(out))
	}
}

func listAvailableHandler(svc AppointmentService) http.HandlerFunc {
	return listHandler(svc.ListAvailableForGuides)
}

func listAssignedHandler(svc AppointmentService) http.HandlerFunc {
	return listHandler(svc.ListAssigned)
}

func listAdminQueueHandler(svc AppointmentService) http.HandlerFunc {
	return listHandler(svc.ListAdminQueue)
}

func listByStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByStatus(r.Context(), mustActor(r), chi.URLParam(r, "status"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func availableTimesHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		times, err := svc.AvailableTimes(r.Context(), chi.URLParam(r, "date"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, times)
	}
}

type appointmentFunc func(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)

// actionHandler serves the lifecycle actions that take nothing but the id.
func actionHandler(action appointmentFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := action(r.Context(), mustActor(r), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return actionHandler(svc.GetAppointment)
}

func getOwnedAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return actionHandler(svc.GetOwned)
}

func schoolNameHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		name, err := svc.SchoolName(r.Context(), mustActor(r), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SchoolNameResponse{AppointmentID: id, SchoolName: name})
	}
}

func updateOwnedAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req, true) {
			return
		}
		appt, err := svc.UpdateOwned(r.Context(), mustActor(r), id, req.patch())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// overrideAppointmentHandler rejects unknown fields so an attempt to patch the
// city fails loudly.
func overrideAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req OverrideAppointmentRequest
		if !decodeJSON(w, r, &req, true) {
			return
		}
		appt, err := svc.OverrideAppointment(r.Context(), mustActor(r), id, appointment.Override{
			Patch:  req.patch(),
			Status: req.Status,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func setStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		appt, err := svc.SetStatus(r.Context(), mustActor(r), id, req.Status)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteAppointment(r.Context(), mustActor(r), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
