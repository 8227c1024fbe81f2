package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meneportal/veritas/internal/api/handlers"
	mw "github.com/meneportal/veritas/internal/api/middleware"
	"github.com/meneportal/veritas/internal/automation"
	"github.com/meneportal/veritas/internal/config"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/embedding"
	"github.com/meneportal/veritas/internal/knowledge"
	"github.com/meneportal/veritas/internal/llm"
	"github.com/meneportal/veritas/internal/service"
	"github.com/meneportal/veritas/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Sweeper *service.SweeperService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, executor domain.AutomationExecutor, logger *zap.Logger) *App {
	// Stores
	agentStore := store.NewAgentStore(db)
	branchStore := store.NewBranchStore(db)
	sharedStore := store.NewSharedMemoryStore(db)
	ledgerStore := store.NewLedgerStore(db)
	documentStore := store.NewDocumentStore(db)

	// Embedding client for the knowledge base
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(),
		embedding.WithModel(config.EmbeddingModel()),
		embedding.WithBaseURL(config.EmbeddingBaseURL()))
	if err != nil {
		logger.Warn("embedding client initialization failed",
			zap.String("provider", config.EmbeddingProvider()),
			zap.Error(err))
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	var searcher *knowledge.Searcher
	if embeddingClient != nil {
		searcher = knowledge.NewSearcher(documentStore, embeddingClient, config.KnowledgeTimeout(), logger)
	}

	// Model clients are bound per agent through the factory.
	clientFactory := func(provider string) (domain.ModelClient, error) {
		return llm.NewClient(provider, config.ProviderAPIKey(provider))
	}

	// Services
	memorySvc := service.NewMemoryService(branchStore, sharedStore, config.ShareThreshold(), logger)

	var knowledgeSearcher domain.KnowledgeSearcher
	if searcher != nil {
		knowledgeSearcher = searcher
	}
	contextSvc := service.NewContextService(memorySvc, knowledgeSearcher, logger)

	coordinatorSvc := service.NewCoordinatorService(agentStore, memorySvc, contextSvc, clientFactory, config.PeerTimeout(), logger)

	internalSources := []service.EvidenceSource{
		service.NewHistoricalSource(branchStore),
		service.NewMemorySource(sharedStore),
	}
	var external service.EvidenceSource
	if executor != nil {
		external = service.NewBrowserSource(executor)
	}
	verificationSvc := service.NewVerificationService(ledgerStore, internalSources, coordinatorSvc, external, service.VerificationConfig{
		HighThreshold:   config.VerifyHighThreshold(),
		MediumThreshold: config.VerifyMediumThreshold(),
		LowThreshold:    config.VerifyLowThreshold(),
		EvidenceTimeout: config.EvidenceTimeout(),
		StaleAfter:      config.VerifyStaleAfter(),
	}, logger)

	platforms := make([]service.Platform, 0)
	for _, p := range config.SyncPlatforms() {
		platforms = append(platforms, service.Platform{
			Name:   p.Name,
			Method: domain.SyncMethod(p.Method),
			URL:    p.URL,
		})
	}
	pusher := service.NewWebhookPusher(config.SyncTimeout())
	syncSvc := service.NewSyncService(memorySvc, ledgerStore, agentStore, pusher, executor, platforms, logger)

	sweeperSvc := service.NewSweeperService(verificationSvc, logger)
	sweeperSvc.SetInterval(config.SweepInterval())

	// Handlers
	agentHandler := handlers.NewAgentHandler(coordinatorSvc)
	memoryHandler := handlers.NewMemoryHandler(memorySvc)
	verifyHandler := handlers.NewVerifyHandler(verificationSvc)
	syncHandler := handlers.NewSyncHandler(syncSvc)
	statsHandler := handlers.NewStatsHandler(coordinatorSvc, memorySvc, verificationSvc, syncSvc, logger)

	var knowledgeHandler *handlers.KnowledgeHandler
	if searcher != nil {
		knowledgeHandler = handlers.NewKnowledgeHandler(searcher)
	}

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Sweeper:   sweeperSvc,
		startTime: time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Get("/", agentHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.GetByID)
				r.Delete("/", agentHandler.Delete)
				r.Post("/query", agentHandler.Query)
				r.Get("/memory", memoryHandler.Recent)
				r.Post("/memory", memoryHandler.Append)
			})
		})

		r.Post("/broadcast", agentHandler.Broadcast)

		r.Route("/memory", func(r chi.Router) {
			r.Get("/shared/search", memoryHandler.SearchShared)
			r.Get("/export", memoryHandler.Export)
			r.Post("/import", memoryHandler.Import)
		})

		r.Route("/verify", func(r chi.Router) {
			r.Post("/", verifyHandler.Verify)
			r.Get("/search", verifyHandler.Search)
			r.Get("/{id}", verifyHandler.Get)
		})

		r.Post("/sync", syncHandler.Sync)
		r.Get("/sync/status", syncHandler.Status)

		if knowledgeHandler != nil {
			r.Post("/documents", knowledgeHandler.AddDocument)
			r.Get("/knowledge/search", knowledgeHandler.Search)
		}

		r.Get("/stats", statsHandler.Stats)
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage lifecycle
// themselves.
func NewRouter(db *pgxpool.Pool, executor domain.AutomationExecutor, logger *zap.Logger) *chi.Mux {
	return NewApp(db, executor, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.AgentStore         = (*store.AgentStore)(nil)
	_ domain.BranchStore        = (*store.BranchStore)(nil)
	_ domain.SharedMemoryStore  = (*store.SharedMemoryStore)(nil)
	_ domain.LedgerStore        = (*store.LedgerStore)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.ModelClient        = (*llm.OpenAIClient)(nil)
	_ domain.ModelClient        = (*llm.AnthropicClient)(nil)
	_ domain.ModelClient        = (*llm.GroqClient)(nil)
	_ domain.ModelClient        = (*llm.MockClient)(nil)
	_ domain.KnowledgeSearcher  = (*knowledge.Searcher)(nil)
	_ domain.AutomationExecutor = (*automation.RodExecutor)(nil)
	_ domain.AutomationExecutor = (*automation.MockExecutor)(nil)
)
