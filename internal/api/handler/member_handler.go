package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/service"
)

// MemberHandler serves the admin member endpoints.
type MemberHandler struct {
	svc    *service.MemberService
	logger *zap.Logger
}

func NewMemberHandler(svc *service.MemberService, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/admin/members
//
// @Summary  Search and page through members
// @Tags     admin
// @Produce  json
// @Param    search      query  string  false  "Substring of email or name"
// @Param    sort_by     query  string  false  "joined_at | email | name | updates_received"
// @Param    sort_order  query  string  false  "asc | desc"
// @Param    page        query  int     false  "Page number"
// @Param    limit       query  int     false  "Page size (max 100)"
// @Success  200  {object}  map[string]any
// @Router   /api/v1/admin/members [get]
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.MemberFilter{
		Search:   q.Get("search"),
		SortBy:   domain.SortField(q.Get("sort_by")),
		SortDesc: !strings.EqualFold(q.Get("sort_order"), "asc"),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 0),
	}

	members, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		mapError(w, err)
		return
	}
	if f.Page < 1 {
		f.Page = 1
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data": members,
		"meta": pageMeta{Page: f.Page, Count: len(members), Total: total},
	})
}

// Export handles GET /api/v1/admin/members/export
//
// The CSV is built in memory so a store error still yields a JSON error
// response instead of a truncated file.
func (h *MemberHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), &buf); err != nil {
		h.logger.Error("export members", zap.Error(err))
		mapError(w, err)
		return
	}
	name := fmt.Sprintf("waitlist_export_%s.csv", time.Now().UTC().Format("2006_01_02_15_04_05"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ResendWelcome handles POST /api/v1/admin/members/{id}/welcome
func (h *MemberHandler) ResendWelcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, sent, err := h.svc.ResendWelcome(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	if !sent {
		respondJSON(w, http.StatusBadGateway, map[string]any{"error": "welcome email could not be delivered", "member": m})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"member": m, "email_sent": true})
}
