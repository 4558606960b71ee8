package api

import (
	"net/http"

	"github.com/hackgods/school-visit-booking/internal/school"
)

func listSchoolsHandler(svc SchoolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]SchoolResponse, 0, len(list))
		for i := range list {
			out = append(out, toSchoolResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getSchoolHandler(svc SchoolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		s, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchoolResponse(s))
	}
}

func createSchoolHandler(svc SchoolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SchoolRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		s, err := svc.Create(r.Context(), mustActor(r), school.Input{Name: req.Name, City: req.City})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSchoolResponse(s))
	}
}

func updateSchoolHandler(svc SchoolService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req SchoolRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		s, err := svc.Update(r.Context(), mustActor(r), id, school.Input{Name: req.Name, City: req.City})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchoolResponse(s))
	}
}

func deleteSchoolHandler(svc SchoolService) http.HandlerFunc {
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
