package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leadline-hq/leadline/internal/http/handlers"
	httpmiddleware "github.com/leadline-hq/leadline/internal/http/middleware"
	"github.com/leadline-hq/leadline/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	InboundWebhook *handlers.InboundWebhookHandler
	CallResults    *handlers.CallResultHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(wh chi.Router) {
		if cfg.InboundWebhook != nil {
			wh.Post("/inbound/{webhookKey}", cfg.InboundWebhook.Handle)
		}
		if cfg.CallResults != nil {
			wh.Post("/calls/{webhookKey}", cfg.CallResults.Handle)
		}
	})

	return r
}
