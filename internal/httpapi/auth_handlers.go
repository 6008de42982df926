package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"jwtpizza.org/internal/audit"
	"jwtpizza.org/internal/auth"
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

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type sessionResponse struct {
	User      auth.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "register"
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, token, err := a.sessions.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.metrics.AuthOutcome(op, "failure")
		a.fail(w, r, op, err)
		return
	}
	a.metrics.AuthOutcome(op, "success")
	ctx := auth.ContextWithActor(r.Context(), auth.Actor{UserID: user.ID, Roles: user.Roles})
	_ = audit.LogEvent(ctx, audit.EventRegister, map[string]any{"email": user.Email})
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token.Value, ExpiresAt: token.ExpiresAt})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, token, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.metrics.AuthOutcome(op, "success")
	ctx := auth.ContextWithActor(r.Context(), auth.Actor{UserID: user.ID, Roles: user.Roles})
	_ = audit.LogEvent(ctx, audit.EventLogin, nil)
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token.Value, ExpiresAt: token.ExpiresAt})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	const op = "logout"
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "unauthorized")
		return
	}
	if err := a.sessions.Logout(r.Context(), token); err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.metrics.AuthOutcome(op, "success")
	_ = audit.LogEvent(r.Context(), audit.EventLogout, nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logout successful"})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	targetID := chi.URLParam(r, "userID")
	user, err := a.sessions.UpdateProfile(r.Context(), auth.ActorFromContext(r.Context()), targetID, auth.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.fail(w, r, auth.ActionUpdateUser.String(), err)
		return
	}
	fields := map[string]any{"target_id": user.ID}
	if req.Password != nil {
		fields["password_changed"] = true
	}
	_ = audit.LogEvent(r.Context(), audit.EventProfileUpdate, fields)
	writeJSON(w, http.StatusOK, user)
}
