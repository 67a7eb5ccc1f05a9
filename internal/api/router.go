package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/api/handlers"
	mw "github.com/Harshitk-cp/dilemma/internal/api/middleware"
	"github.com/Harshitk-cp/dilemma/internal/buildconfig"
	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/llm"
	"github.com/Harshitk-cp/dilemma/internal/service"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/Harshitk-cp/dilemma/internal/store/local"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const rateLimitCleanupInterval = 10 * time.Minute

// Deps are the collaborators the HTTP app is built from.
type Deps struct {
	Sessions          domain.SessionStore
	Cases             domain.DecisionPointProvider
	LLM               domain.LLMClient
	GenerationTimeout time.Duration

	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error

	APIKeys        []string
	RateLimitRPS   float64
	RateLimitBurst int

	Logger *zap.Logger
}

// App holds the router and the background work tied to it.
type App struct {
	Router    *chi.Mux
	Service   *service.ExplorationService
	metrics   *mw.Metrics
	startTime time.Time
	stop      context.CancelFunc
}

func NewApp(d Deps) *App {
	logger := d.Logger
	svc := service.NewExplorationService(d.Sessions, d.Cases, d.LLM, d.GenerationTimeout, logger)

	caseHandler := handlers.NewCaseHandler(svc, logger)
	sessionHandler := handlers.NewSessionHandler(svc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	limiter := mw.NewRateLimiter(d.RateLimitRPS, d.RateLimitBurst)
	go limiter.Run(ctx, rateLimitCleanupInterval)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Service:   svc,
		metrics:   &mw.Metrics{},
		startTime: time.Now(),
		stop:      cancel,
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)

	// Unauthenticated
	r.Get("/health", healthHandler(d.Health))
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(d.APIKeys))
		r.Use(mw.RateLimit(limiter))

		r.Get("/cases", caseHandler.List)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Get("/decision", sessionHandler.CurrentDecision)
				r.Post("/choices", sessionHandler.SubmitChoice)
				r.Get("/choices", sessionHandler.ListChoices)
				r.Post("/analysis", sessionHandler.ComposeAnalysis)
				r.Get("/analysis", sessionHandler.GetAnalysis)
			})
		})
	})

	return app
}

// Close stops background work started by NewApp.
func (app *App) Close() {
	app.stop()
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildconfig.VersionInfo())
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"requests":       app.metrics.Snapshot(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.SessionStore = (*store.SessionStore)(nil)
	_ domain.SessionStore = (*local.SessionStore)(nil)
	_ domain.LLMClient    = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient    = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient    = (*llm.GeminiClient)(nil)
	_ domain.LLMClient    = (*llm.CerebrasClient)(nil)
	_ domain.LLMClient    = (*llm.MockClient)(nil)
)
