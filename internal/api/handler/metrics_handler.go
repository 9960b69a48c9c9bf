package handler

import (
	"net/http"

	"github.com/notifyhub/waitlist/internal/queue"
)

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics via promhttp and are
// separate from this endpoint.
type MetricsHandler struct {
	q queue.Queue
}

func NewMetricsHandler(q queue.Queue) *MetricsHandler {
	return &MetricsHandler{q: q}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Real-time queue depth snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	d, ok := h.q.(queue.DepthReporter)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"queue_depth": nil, "backend": "external"})
		return
	}
	high, normal, low := d.Depths()
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": map[string]int{
			"high":   high,
			"normal": normal,
			"low":    low,
			"total":  high + normal + low,
		},
	})
}
