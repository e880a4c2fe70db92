package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/functiomed/voice-agent/internal/http/handlers"
	httpmiddleware "github.com/functiomed/voice-agent/internal/http/middleware"
	"github.com/functiomed/voice-agent/internal/webchat"
	"github.com/functiomed/voice-agent/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webchat            *webchat.Handler
	AdminAppointments  *handlers.AdminAppointmentsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests per second and burst for the webchat HTTP fallback.
	MessageRate  float64
	MessageBurst int
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webchat != nil {
		r.Route("/webchat", func(wc chi.Router) {
			wc.Get("/ws", cfg.Webchat.HandleWebSocket)
			wc.Get("/history", cfg.Webchat.HandleHistory)

			rate := cfg.MessageRate
			burst := cfg.MessageBurst
			if rate <= 0 {
				rate = 2
			}
			if burst <= 0 {
				burst = 5
			}
			wc.With(httpmiddleware.RateLimit(rate, burst)).Post("/message", cfg.Webchat.HandleMessage)
		})
	}

	if cfg.AdminAppointments != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/appointments", cfg.AdminAppointments.List)
			admin.Get("/appointments/export", cfg.AdminAppointments.Export)
			admin.Get("/appointments/{id}", cfg.AdminAppointments.Get)
			admin.Delete("/appointments/{id}", cfg.AdminAppointments.Cancel)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
