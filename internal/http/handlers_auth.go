package http

import (
	"errors"
	"net/http"
	"time"

	"spendly/internal/core"
	"spendly/internal/services"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name     *string `json:"name"`
	Currency *string `json:"currency"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type sessionResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      core.User `json:"user"`
}

func newSessionResponse(message string, s services.Session) sessionResponse {
	return sessionResponse{Message: message, Token: s.Token, ExpiresAt: s.ExpiresAt, User: s.User}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.deps.Accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse("User registered", session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, core.NewValidationError("email", "email and password are required"))
		return
	}

	session, err := s.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse("Login successful", session))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Accounts.Me(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, accountError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.deps.Accounts.UpdateProfile(r.Context(), ownerID(r), req.Name, req.Currency)
	if err != nil {
		writeError(w, r, accountError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated", "user": u})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.deps.Accounts.ChangePassword(r.Context(), ownerID(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, accountError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password changed successfully"})
}

// accountError treats a token whose account no longer exists as unauthorized.
func accountError(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrUnauthorized
	}
	return err
}
