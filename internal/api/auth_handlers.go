package api

import (
	"net/http"

	"github.com/hackgods/school-visit-booking/internal/identity"
)

func registerHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		schoolID, err := parseOptionalUUID(req.SchoolID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_school_id", "school_id must be a valid UUID")
			return
		}

		var caller *identity.Actor
		if a, ok := actorFrom(r.Context()); ok {
			caller = &a
		}

		u, err := svc.Register(r.Context(), caller, identity.RegisterInput{
			Email:    req.UserEmail,
			Role:     req.Role,
			Name:     req.Name,
			SchoolID: schoolID,
			Password: req.Password,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toUserResponse(u))
	}
}

// loginHandler takes the OAuth2 password grant form: username carries the email.
func loginHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse form body")
			return
		}
		form := LoginForm{Username: r.PostForm.Get("username"), Password: r.PostForm.Get("password")}
		if !validStruct(w, form) {
			return
		}

		sess, err := svc.Login(r.Context(), form.Username, form.Password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{
			AccessToken: sess.Token,
			TokenType:   "bearer",
			Role:        string(sess.User.Role),
			Name:        sess.User.Name,
			UserEmail:   sess.User.Email,
		})
	}
}

func updateUserHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateUserRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		u, err := svc.UpdateUser(r.Context(), mustActor(r), identity.UserPatch{
			Name:     req.Name,
			Email:    req.UserEmail,
			Password: req.Password,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, UpdateUserResponse{Message: "User updated successfully", UpdatedUser: toUserResponse(u)})
	}
}

func sendOTPHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendOTPRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if err := svc.RequestOTP(r.Context(), req.Email); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "OTP sent successfully"})
	}
}

func verifyOTPHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyOTPRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if err := svc.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "OTP verified successfully"})
	}
}

func resetPasswordHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetPasswordRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if err := svc.ResetPassword(r.Context(), req.UserEmail, req.NewPassword); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
	}
}
