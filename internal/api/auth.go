package api

import (
	"net/http"
	"time"

	"github.com/solarafrica/solarplanner/internal/auth"
	"github.com/solarafrica/solarplanner/internal/storage"
)

type authHandler struct {
	svc *auth.Service
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse returns the account together with a bearer token.
type AuthResponse struct {
	User        *storage.User `json:"user"`
	AccessToken string        `json:"accessToken"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
}

func (h *authHandler) issue(w http.ResponseWriter, r *http.Request, email, password string, status int, message string) {
	u, raw, t, err := h.svc.Login(r.Context(), email, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, status, message, AuthResponse{User: u, AccessToken: raw, ExpiresAt: t.ExpiresAt})
}

// Register creates an account and logs it in
// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Param input body RegisterRequest true "Account"
// @Success 201 {object} Envelope{data=AuthResponse}
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope
// @Router /api/auth/register [post]
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name, req.Phone); err != nil {
		writeError(w, r, err)
		return
	}
	h.issue(w, r, req.Email, req.Password, http.StatusCreated, "User registered successfully")
}

// Login exchanges credentials for a bearer token
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param input body LoginRequest true "Credentials"
// @Success 200 {object} Envelope{data=AuthResponse}
// @Failure 401 {object} Envelope
// @Router /api/auth/login [post]
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		fail(w, r, http.StatusBadRequest, "Validation failed", "email and password are required")
		return
	}
	h.issue(w, r, req.Email, req.Password, http.StatusOK, "Login successful")
}

// ProfileRequest changes account details. Omitted fields are kept.
type ProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// LogoutResponse reports how many tokens were revoked.
type LogoutResponse struct {
	Revoked int `json:"revoked"`
}

// Logout revokes the bearer token used for the request, or every token of
// the account with all=true
// @Summary Logout
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param all query bool false "Revoke every session"
// @Success 200 {object} Envelope{data=LogoutResponse}
// @Failure 401 {object} Envelope
// @Router /api/auth/logout [post]
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, found := auth.TokenFromContext(r.Context())
	if !found {
		fail(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	if r.URL.Query().Get("all") == "true" {
		n, err := h.svc.LogoutAll(r.Context(), token.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ok(w, r, http.StatusOK, "Logged out of all sessions", LogoutResponse{Revoked: n})
		return
	}
	if err := h.svc.Logout(r.Context(), token.ID); err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Logged out", LogoutResponse{Revoked: 1})
}

// UpdateProfile changes the name or phone of the authenticated account
// @Summary Update profile
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body ProfileRequest true "Profile fields"
// @Success 200 {object} Envelope{data=storage.User}
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/auth/profile [put]
func (h *authHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		fail(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req ProfileRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), userID, req.Name, req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Profile updated successfully", u)
}

// Me returns the authenticated account
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=storage.User}
// @Failure 401 {object} Envelope
// @Router /api/auth/me [get]
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		fail(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	u, err := h.svc.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		fail(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	ok(w, r, http.StatusOK, "Profile retrieved successfully", u)
}
