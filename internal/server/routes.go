package server

import (
	"log/slog"
	"net/http"
)

// Config contains router options.
type Config struct {
	// AllowedOrigins lists the CORS origins; "*" allows any.
	AllowedOrigins []string
}

// DefaultConfig allows every origin.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

type route struct {
	pattern string
	handler http.HandlerFunc
}

func (h *Handlers) routes() []route {
	return []route{
		{"GET /health", h.Health},

		{"POST /jobs", h.CreateJob},
		{"GET /jobs", h.ListJobs},
		{"GET /jobs/{id}", h.GetJob},
		{"GET /jobs/{id}/artifact", h.GetArtifact},
		{"DELETE /jobs/{id}", h.DeleteJob},

		{"POST /images/edit", h.EditImage},
	}
}

// NewRouter registers every endpoint on a ServeMux wrapped in the
// request ID, recovery, logging and CORS middleware.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	for _, r := range h.routes() {
		mux.HandleFunc(r.pattern, r.handler)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg = DefaultConfig()
	}

	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return chain(mux)
}
