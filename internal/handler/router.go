package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkarlsen/voiceloop/internal/config"
	"github.com/mkarlsen/voiceloop/internal/handler/clip"
	"github.com/mkarlsen/voiceloop/internal/handler/voice"
	middlewarePkg "github.com/mkarlsen/voiceloop/internal/middleware"
	"github.com/mkarlsen/voiceloop/internal/service/pipeline"
	"github.com/mkarlsen/voiceloop/pkg/utils"
)

// NewRouter wires HTTP routes to the conversation pipeline. The clip handler
// is returned alongside so main can tear down its long-lived sessions on
// shutdown.
func NewRouter(cfg *config.Config, engines pipeline.Engines) (http.Handler, *clip.Handler) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	opts := cfg.Pipeline.Options()
	voiceHandler := voice.New(engines, opts)
	clipHandler := clip.New(engines, opts)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		voiceHandler.RegisterRoutes(api)
		clipHandler.RegisterRoutes(api)
	})

	// Serve the browser client when a web directory is configured.
	if dir := cfg.Server.WebDir; dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}

	return r, clipHandler
}
