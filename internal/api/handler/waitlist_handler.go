package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/waitlist/internal/api/middleware"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/service"
)

const recentEntries = 10

// WaitlistHandler serves the public signup endpoints.
type WaitlistHandler struct {
	svc    *service.MemberService
	logger *zap.Logger
}

func NewWaitlistHandler(svc *service.MemberService, logger *zap.Logger) *WaitlistHandler {
	return &WaitlistHandler{svc: svc, logger: logger}
}

type joinResponse struct {
	Member      *domain.Member `json:"member"`
	EmailSent   bool           `json:"email_sent"`
	EmailStatus string         `json:"email_status"`
}

// Join handles POST /api/v1/waitlist/join
//
// @Summary     Join the waitlist
// @Tags        waitlist
// @Accept      json
// @Produce     json
// @Param       body  body      domain.JoinRequest  true  "Signup payload"
// @Success     201   {object}  joinResponse
// @Failure     409   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/waitlist/join [post]
func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req domain.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, sent, err := h.svc.Join(r.Context(), req)
	if err != nil {
		h.logger.Warn("waitlist join failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	status := "sent"
	if !sent {
		status = "failed"
	}
	respondJSON(w, http.StatusCreated, joinResponse{Member: m, EmailSent: sent, EmailStatus: status})
}

// Stats handles GET /api/v1/waitlist/stats
//
// @Summary  Public signup counters
// @Tags     waitlist
// @Produce  json
// @Success  200  {object}  map[string]int
// @Router   /api/v1/waitlist/stats [get]
func (h *WaitlistHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"total": s.Total, "today": s.JoinedToday})
}

type recentEntry struct {
	ID       string    `json:"id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Recent handles GET /api/v1/waitlist
//
// Only ids and join times are exposed publicly.
func (h *WaitlistHandler) Recent(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Recent(r.Context(), recentEntries)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]recentEntry, 0, len(members))
	for _, m := range members {
		out = append(out, recentEntry{ID: m.ID, JoinedAt: m.JoinedAt})
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": out})
}
