package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/api/handler"
	apimw "github.com/notifyhub/waitlist/internal/api/middleware"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/service"
)

// Deps bundles everything the HTTP layer depends on.
type Deps struct {
	Members   *service.MemberService
	Broadcast *service.BroadcastService
	Campaigns *service.CampaignService
	Auth      *service.AuthService
	Queue     queue.Queue
	Ping      handler.Pinger
	Gatherer  prometheus.Gatherer
	Origins   []string
	Logger    *zap.Logger
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.Tracing)
	r.Use(apimw.RequestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}))

	wh := handler.NewWaitlistHandler(d.Members, d.Logger)
	ah := handler.NewAdminHandler(d.Auth, d.Campaigns, d.Logger)
	mbh := handler.NewMemberHandler(d.Members, d.Logger)
	ch := handler.NewCampaignHandler(d.Broadcast, d.Campaigns, d.Logger)
	mh := handler.NewMetricsHandler(d.Queue)
	hh := handler.NewHealthHandler(d.Ping)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/waitlist/join", wh.Join)
		r.Get("/waitlist/stats", wh.Stats)
		r.Get("/waitlist", wh.Recent)

		r.Get("/metrics", mh.GetMetrics)

		r.Route("/admin", func(r chi.Router) {
			r.With(chimw.Throttle(10)).Post("/login", ah.Login)

			r.Group(func(r chi.Router) {
				r.Use(apimw.RequireAdmin(d.Auth))

				r.Get("/me", ah.Me)
				r.Post("/logout", ah.Logout)
				r.Get("/dashboard", ah.Dashboard)

				// export is registered before {id} routes so the literal
				// segment is not taken as an id.
				r.Get("/members/export", mbh.Export)
				r.Get("/members", mbh.List)
				r.Post("/members/{id}/welcome", mbh.ResendWelcome)

				r.Post("/campaigns", ch.Create)
				r.Get("/campaigns", ch.List)
				r.Get("/campaigns/{id}", ch.GetByID)
			})
		})
	})

	return r
}
