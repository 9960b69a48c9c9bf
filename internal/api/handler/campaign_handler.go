package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/waitlist/internal/api/middleware"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/service"
)

// CampaignHandler serves broadcast creation and history.
type CampaignHandler struct {
	broadcast *service.BroadcastService
	campaigns *service.CampaignService
	logger    *zap.Logger
}

func NewCampaignHandler(broadcast *service.BroadcastService, campaigns *service.CampaignService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{broadcast: broadcast, campaigns: campaigns, logger: logger}
}

// Create handles POST /api/v1/admin/campaigns
//
// @Summary     Broadcast an update to every member
// @Description Returns as soon as the campaign is recorded; delivery progress
// @Description is visible through the campaign's counters.
// @Tags        campaigns
// @Accept      json
// @Produce     json
// @Param       body  body      domain.BroadcastRequest  true  "Subject and message"
// @Success     202   {object}  domain.Campaign
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/admin/campaigns [post]
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.BroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	admin := apimw.AdminFromContext(r.Context())
	if admin == nil {
		respondError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}

	c, err := h.broadcast.Broadcast(r.Context(), req, admin.ID)
	if err != nil {
		h.logger.Warn("broadcast rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("admin_id", admin.ID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, c)
}

// List handles GET /api/v1/admin/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	list, total, err := h.campaigns.List(r.Context(), page, queryInt(r, "limit", 0))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data": list,
		"meta": pageMeta{Page: page, Count: len(list), Total: total},
	})
}

// GetByID handles GET /api/v1/admin/campaigns/{id}
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"campaign":     c,
		"pending":      c.Pending(),
		"success_rate": c.SuccessRate(),
	})
}
