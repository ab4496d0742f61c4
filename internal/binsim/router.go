package binsim

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

func NewRouter(h *Handlers, auth *Auth, corsOrigins []string, rateRPM int) http.Handler {
	r := chi.NewRouter()

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	})

	r.Use(Recovery)
	r.Use(Logging)
	r.Use(corsHandler.Handler)
	r.Use(NewRateLimit(rateRPM).Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/auth/login", h.Login)
	r.With(auth.RequireAuth).Get("/auth/me", h.Me)

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.RequireAuth)
		api.Post("/qr/validate", h.ValidateQR)
		api.Post("/scan", h.Scan)
		api.Get("/scan/transactions/summary", h.Summary)
	})

	r.With(auth.RequireAuth).Get("/ws/notifications/{userID}", h.Notifications)

	return r
}
