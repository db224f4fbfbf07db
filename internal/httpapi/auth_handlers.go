package httpapi

import (
	"net/http"

	"github.com/halolight/halolight-api-go/internal/audit"
	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User         auth.UserWithRoles `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	ExpiresIn    int64              `json:"expiresIn"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func newAuthResponse(res auth.AuthResult) authResponse {
	return authResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresIn:    res.Tokens.ExpiresIn,
	}
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bind(w, r, &req) {
		return
	}
	res, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	obs.AuthEvent("register", err)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": res.User.ID,
		"email":   res.User.Email,
	})
	writeJSON(w, http.StatusCreated, newAuthResponse(res))
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bind(w, r, &req) {
		return
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	obs.AuthEvent("login", err)
	if err != nil {
		if auth.IsUnauthorized(err) {
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
		}
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": res.User.ID})
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "refreshToken is required")
		return
	}
	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	obs.AuthEvent("refresh", err)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	err := a.auth.Logout(r.Context(), req.RefreshToken)
	obs.AuthEvent("logout", err)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (a *API) logoutAll(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	err := a.auth.LogoutAll(r.Context(), id.UserID)
	obs.AuthEvent("logout_all", err)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout_all", nil)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out from all devices"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.CurrentUser(r.Context(), identity(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
