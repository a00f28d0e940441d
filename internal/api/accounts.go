package api

import (
	"errors"
	"net/http"

	"github.com/YuMe-02/Hydroconnect/internal/audit"
	"github.com/YuMe-02/Hydroconnect/internal/auth"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleSignup creates an account. An email that is already registered is
// answered with 202 rather than an error.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.accounts.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, verr.Reason)
		case errors.Is(err, auth.ErrEmailExists):
			writeJSON(w, http.StatusAccepted, messageResponse{Message: "User already exists. Please Log in."})
		default:
			s.logger.Error("signup failed", "error", err, "request_id", requestID(r.Context()))
			writeInternalError(w)
		}
		return
	}

	s.audit.Record(r.Context(), audit.Entry{
		Action:     audit.ActionSignup,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
		Source:     audit.SourceAPI,
	})
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Successfully registered."})
}

// handleLogin issues a session token. Missing fields and a wrong password
// are 401; an unknown email is 403.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, token, _, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.audit.Record(r.Context(), audit.Entry{
				Action:     audit.ActionLoginFailed,
				EntityType: audit.EntityUser,
				Source:     audit.SourceAPI,
				Details:    map[string]any{"reason": "invalid_credentials"},
			})
			w.Header().Set("WWW-Authenticate", `Basic realm="Login required"`)
			writeUnauthorized(w, "Could not verify")
		case errors.Is(err, auth.ErrUserNotFound):
			w.Header().Set("WWW-Authenticate", `Basic realm="User does not exist"`)
			writeError(w, http.StatusForbidden, ErrCodeForbidden, "Could not verify")
		default:
			s.logger.Error("login failed", "error", err, "request_id", requestID(r.Context()))
			writeInternalError(w)
		}
		return
	}

	s.audit.Record(r.Context(), audit.Entry{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
		Source:     audit.SourceAPI,
	})
	writeJSON(w, http.StatusCreated, loginResponse{Token: token})
}
