package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/auth/jwt"
	"github.com/gokatarajesh/wager-quiz/internal/config"
	"github.com/gokatarajesh/wager-quiz/internal/logging"
	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
	ws "github.com/gokatarajesh/wager-quiz/pkg/http/ws"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Store     roomstore.Store
	Tokens    *jwt.Manager
	Hub       *ws.Hub
	Questions match.QuestionSource
	// Ping checks backing services for /readyz. Nil means always ready.
	Ping func(ctx context.Context) error
}

// NewRouter wires health, metrics, room, question and feed routes.
func NewRouter(cfg *config.App, deps Deps, logger zerolog.Logger) http.Handler {
	rooms := NewRoomHandlers(deps.Store, deps.Tokens, logger)
	questions := NewQuestionHandlers(deps.Questions, cfg.Runtime.GenerateTimeout, logger)
	feed := NewFeedHandler(deps.Store, deps.Hub, cfg.CORS.AllowedOrigins, logger)
	requireToken := RequireRoomToken(deps.Tokens, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(withLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				reqLogger := logging.FromContext(r.Context())
				reqLogger.Error().Err(err).Msg("dependency ping failed")
				httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "Dependencies unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.Runtime.RequestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.Runtime.RequestTimeout))
			}
			r.Post("/rooms", rooms.Create)
			r.Route("/rooms/{code}", func(r chi.Router) {
				r.Get("/", rooms.Get)
				r.Post("/players", rooms.Join)
				r.With(requireToken).Patch("/", rooms.UpdateRoom)
				r.With(requireToken).Patch("/players/{playerID}", rooms.UpdatePlayer)
				r.With(requireToken).Delete("/players/{playerID}", rooms.Leave)
			})
		})
		r.Post("/questions/generate", questions.Generate)
	})

	r.Method(http.MethodGet, "/ws/rooms/{code}", feed)

	return r
}

// NewHTTPServer builds the API server around NewRouter.
func NewHTTPServer(cfg *config.App, deps Deps, logger zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewRouter(cfg, deps, logger),
	}
}

func withLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			next.ServeHTTP(w, r.WithContext(logging.IntoContext(r.Context(), l)))
		})
	}
}
