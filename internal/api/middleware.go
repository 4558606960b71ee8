package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/hackgods/school-visit-booking/internal/apperr"
	"github.com/hackgods/school-visit-booking/internal/identity"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	actorKey       contextKey = "actor"
	requestUserKey contextKey = "request_user"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestUser is filled in by RequireAuth so the access log can name the caller.
type requestUser struct {
	id uuid.UUID
}

// LoggingMiddleware logs method, path, status, duration, caller and request ID.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		holder := &requestUser{}

		next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), requestUserKey, holder)))

		user := "-"
		if holder.id != uuid.Nil {
			user = holder.id.String()
		}
		log.Printf("method=%s path=%s status=%d duration=%s user=%s request_id=%s",
			r.Method, r.URL.Path, wrapped.status, time.Since(start), user, GetRequestID(r.Context()))
	})
}

// CORSMiddleware allows the configured frontend origin with credentials.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// Authorizer turns a bearer token into the caller behind it.
type Authorizer interface {
	Authorize(ctx context.Context, raw string) (identity.Actor, error)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(auth Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			actor, err := auth.Authorize(r.Context(), raw)
			if err != nil {
				switch apperr.Kind(err) {
				case apperr.ErrUnauthorized, apperr.ErrNotFound:
					w.Header().Set("WWW-Authenticate", "Bearer")
					writeError(w, http.StatusUnauthorized, "unauthorized", "could not validate credentials")
				default:
					handleError(w, r, err)
				}
				return
			}
			if holder, ok := r.Context().Value(requestUserKey).(*requestUser); ok {
				holder.id = actor.UserID
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// OptionalAuth attaches the caller when a token is sent. A token that does not
// verify is still rejected.
func OptionalAuth(auth Authorizer) func(http.Handler) http.Handler {
	required := RequireAuth(auth)
	return func(next http.Handler) http.Handler {
		withActor := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearerToken(r); !ok {
				next.ServeHTTP(w, r)
				return
			}
			withActor.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func actorFrom(ctx context.Context) (identity.Actor, bool) {
	a, ok := ctx.Value(actorKey).(identity.Actor)
	return a, ok
}

// mustActor is for handlers mounted behind RequireAuth.
func mustActor(r *http.Request) identity.Actor {
	a, _ := actorFrom(r.Context())
	return a
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
