package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/wave-api/internal/config"
	"github.com/wave-api/internal/transport/http/handler"
	appmiddleware "github.com/wave-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. Background cleanup
// started here stops when ctx is done.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			appmiddleware.AttestationHeader, appmiddleware.DeviceHeader, appmiddleware.RegionHeader,
		},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, on endpoints that send SMS or mint tokens.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	attestH := handler.NewAttestationHandler(deps.Attestation)
	countryH := handler.NewCountryHandler(deps.Countries)
	phoneH := handler.NewPhoneAuthHandler(deps.Registry)
	msgH := handler.NewMessageHandler(deps.Chat)
	accountH := handler.NewAccountHandler(deps.Account)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes ────────────────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/attestation/token", attestH.Issue)

		// ── Attested routes ──────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Attestation(deps.Attestation))

			r.Get("/countries", countryH.List)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireDevice)
				r.Get("/phone-auth", phoneH.Get)
				r.Get("/phone-auth/events", phoneH.Events)
				r.With(sensitiveRL.Limit).Post("/phone-auth/{action}", phoneH.Action)
			})

			// ── Authenticated routes ─────────────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.Identity))

				r.Group(func(r chi.Router) {
					r.Use(appmiddleware.RequireSession(deps.Identity))
					r.Get("/messages", msgH.List)
					r.Post("/messages", msgH.Append)
					r.Post("/messages/start-chat", msgH.StartChat)
				})

				r.Get("/account", accountH.Get)
				r.Put("/account/{action}", accountH.Toggle)
				r.With(sensitiveRL.Limit).Post("/account/delete/{action}", accountH.Delete)
			})
		})
	})

	return r
}
