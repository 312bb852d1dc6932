package handlers

import (
	"net/http"
	"time"

	"eventstaff/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	// Gate nil отключает ограничение частоты.
	Gate    ratelimit.Gate
	Metrics http.Handler
}

// NewRouter собирает маршруты /api и служебные /metrics.
func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Group(func(r chi.Router) {
			if cfg.Gate != nil {
				r.Use(ratelimit.Middleware(cfg.Gate, h.Log, nil))
			}

			// проекты и их финансы
			r.Post("/projects", h.CreateProjectHandler)
			r.Get("/projects/{projectId}", h.GetProjectHandler)
			r.Get("/projects/{projectId}/costs", h.GetCostsHandler)
			r.Post("/projects/{projectId}/recalculate", h.RecalculateHandler)
			r.Put("/projects/{projectId}/margin", h.SetMarginHandler)
			r.Post("/projects/{projectId}/team", h.AddTeamMemberHandler)
			r.Patch("/projects/{projectId}/team/{memberId}", h.UpdateTeamMemberHandler)
			r.Delete("/projects/{projectId}/team/{memberId}", h.RemoveTeamMemberHandler)
			r.Post("/projects/{projectId}/equipment", h.AddEquipmentLineHandler)
			r.Delete("/projects/{projectId}/equipment/{lineId}", h.RemoveEquipmentLineHandler)

			// котировки
			r.Post("/projects/{projectId}/quotations", h.RequestQuotationsHandler)
			r.Get("/projects/{projectId}/quotations", h.ListQuotationsHandler)
			r.Put("/quotations/{quotationId}/accept", h.AcceptQuotationHandler)
			r.Put("/quotations/{quotationId}/reject", h.RejectQuotationHandler)
			r.Get("/supplier/quotations/{token}", h.GetSupplierQuotationHandler)
			r.Post("/supplier/quotations/{token}/submit", h.SubmitSupplierQuotationHandler)

			// подбор
			r.Post("/matches", h.MatchCandidatesHandler)
		})
	})
	return r
}

// RequestLogger пишет шаблон маршрута, а не путь: в пути может быть токен поставщика.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"route":      route,
				"status":     status,
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})

			switch {
			case status >= 500:
				entry.Error("Request failed")
			case status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request processed")
			}
		})
	}
}
