package main

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/goodimpact/backoffice-api/internal/config"
	"github.com/goodimpact/backoffice-api/internal/domain/dispatch"
	"github.com/goodimpact/backoffice-api/internal/domain/investment"
	"github.com/goodimpact/backoffice-api/internal/domain/order"
	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/middleware"
	"github.com/goodimpact/backoffice-api/internal/pkg/jwt"
	"github.com/goodimpact/backoffice-api/internal/pkg/response"
)

const version = "1.0.0"

// newRouter wires repositories, services and handlers onto one chi router
func newRouter(cfg *config.Config, db *sqlx.DB, hub *dispatch.Hub, jwtService *jwt.Service) http.Handler {
	// ---------- Repositories ----------
	ledgerRepo := points.NewRepository(db)
	orderRepo := order.NewRepository(db)
	investmentRepo := investment.NewRepository(db)

	// ---------- Services ----------
	pointsService := points.NewService(ledgerRepo)
	orderService := order.NewService(orderRepo, pointsService, hub)
	investmentService := investment.NewService(investmentRepo, pointsService, cfg.PointsPerEUR)
	surface := dispatch.NewSurface(orderService, dispatch.SurfaceConfig{
		Offsets: dispatch.Offsets{
			Delivery: cfg.NearETADeliveryOffset,
			Takeaway: cfg.NearETATakeawayOffset,
		},
		NearETAEnabled: cfg.NearETAEnabled,
	})

	// ---------- Handlers ----------
	pointsHandler := points.NewHandler(pointsService)
	orderHandler := order.NewHandler(orderService)
	investmentHandler := investment.NewHandler(investmentService)
	dispatchHandler := dispatch.NewHandler(surface, hub, orderService, cfg.CheckNearETAInterval, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			response.ServiceUnavailable(w, "Database unreachable")
			return
		}
		if err := hub.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, "Redis unreachable")
			return
		}
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			response.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/points", pointsHandler.Routes(authMiddleware))
		r.Mount("/investments", investmentHandler.Routes(authMiddleware))

		r.Route("/shops/{shopID}", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireOperator())
			r.Use(middleware.RequireShopAccess(orderService, "shopID"))
			r.Mount("/", dispatchHandler.Routes())
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())

		r.Mount("/orders", orderHandler.AdminRoutes())
		r.Mount("/users/{id}/points", pointsHandler.AdminRoutes())
		r.Handle("/debug/vars", expvar.Handler())
	})

	return r
}
