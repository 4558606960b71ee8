package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/mail"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

var errBadBody = errors.New("could not parse JSON body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeJSON reads a JSON body into dst and runs its validate tags. With strict
// set, fields dst does not declare are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		details := errBadBody.Error()
		if strict && strings.HasPrefix(err.Error(), "json: unknown field") {
			details = err.Error()
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", details)
		return false
	}
	return validStruct(w, dst)
}

func validStruct(w http.ResponseWriter, v any) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	writeError(w, http.StatusBadRequest, "validation_failed", strings.Join(fields, "; "))
	return false
}

// uuidParam parses the named URL parameter, writing a 400 when it is not a UUID.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// handleError maps service errors onto status codes by their kind.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case apperr.ErrUnauthorized:
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case apperr.ErrForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case apperr.ErrInvalidTransition:
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case apperr.ErrConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case apperr.ErrValidation:
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		if errors.Is(err, mail.ErrDelivery) {
			writeError(w, http.StatusBadGateway, "email_failed", "the email could not be delivered")
			return
		}
		log.Printf("internal error method=%s path=%s request_id=%s: %v", r.Method, r.URL.Path, GetRequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
