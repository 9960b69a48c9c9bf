package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/waitlist/internal/api/middleware"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/service"
)

// AdminHandler serves login and the dashboard.
type AdminHandler struct {
	auth      *service.AuthService
	campaigns *service.CampaignService
	logger    *zap.Logger
}

func NewAdminHandler(auth *service.AuthService, campaigns *service.CampaignService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, campaigns: campaigns, logger: logger}
}

// Login handles POST /api/v1/admin/login
//
// @Summary     Admin login
// @Tags        admin
// @Accept      json
// @Produce     json
// @Param       body  body      domain.LoginRequest  true  "Credentials"
// @Success     200   {object}  service.Session
// @Failure     401   {object}  map[string]string
// @Failure     403   {object}  map[string]string
// @Router      /api/v1/admin/login [post]
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := h.auth.Login(r.Context(), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Dashboard handles GET /api/v1/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.campaigns.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("load dashboard", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Me handles GET /api/v1/admin/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	admin := apimw.AdminFromContext(r.Context())
	if admin == nil {
		respondError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"admin": admin})
}

// Logout handles POST /api/v1/admin/logout
//
// Only the presented token is revoked; other sessions of the same admin
// stay valid.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), apimw.TokenFromContext(r.Context())); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
