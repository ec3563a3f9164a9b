package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/flotteq/booking-service/internal/http/middleware"
	"github.com/flotteq/booking-service/internal/wizard"
	"github.com/flotteq/booking-service/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WizardHandler      *wizard.Handler
	MetricsHandler     http.Handler
	AuthJWTSecret      string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Authenticated booking wizard
	r.Group(func(auth chi.Router) {
		auth.Use(httpmiddleware.UserJWT(cfg.AuthJWTSecret))
		auth.Mount("/bookings/wizard", cfg.WizardHandler.Routes())
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
