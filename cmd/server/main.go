package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"devscope/internal/config"
	"devscope/internal/database"
	"devscope/internal/handlers"
	"devscope/internal/llm"
	"devscope/internal/logging"
	"devscope/internal/models"
	"devscope/internal/monitor"
	"devscope/internal/oracle"
	"devscope/internal/services"
	"devscope/internal/settings"
	"devscope/internal/summarizer"
	"devscope/internal/trigger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting DevScope daemon...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, capture every %s)", cfg.Port, cfg.CaptureInterval)

	services.InitMetrics()

	// Local settings store. Losing it degrades to env-only identity and
	// non-persistent sessions; it never blocks startup.
	store := openSettings()
	identity := resolveIdentity(store, cfg)
	if identity.UserID == "" {
		log.Println("⚠️  No user identity configured; Hive Mind sync is disabled until one is set")
	}

	// Hive Mind connector. Connection is lazy; an unreachable MongoDB only
	// shows up as unhealthy status and skipped syncs.
	hive := database.New(database.Options{
		URI:                 cfg.MongoURI,
		Database:            cfg.MongoDB,
		ActivityCollection:  cfg.ActivityCollection,
		SummariesCollection: cfg.SummariesCollection,
		DefaultOrg:          cfg.OrgID,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := hive.EnsureIndexes(ctx); err != nil {
			log.Printf("⚠️  Failed to ensure Hive Mind indexes: %v", err)
		}
	}()

	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMRate)
	classifier := llm.NewVisionClassifier(llmClient, cfg.VisionModel)

	inspector := monitor.NewInspector(monitor.NewPlatformSensor(), 0)
	mon := monitor.New(monitor.Options{
		CaptureInterval: cfg.CaptureInterval,
		RingCapacity:    cfg.RingCapacity,
		TempRoot:        cfg.TempRoot,
		Inspector:       inspector,
		Capturer:        monitor.NewPlatformCapturer(),
		Classifier:      classifier,
		Publisher:       hive,
		PrivacyFilter:   monitor.BlocklistFilter(inspector, cfg.PrivacyBlocklist),
		Identity:        identity,
	})

	// Live activity stream over WebSocket
	stream := services.NewStreamManager()
	mon.AddListener(stream.Broadcast)

	// Commit watcher follows the active session's repository
	reporter := trigger.NewContextReporter(mon, llmClient, cfg.OracleModel, nil)
	triggers := &triggerSwitcher{reporter: reporter}

	restoreSessions(store, mon)
	if active, ok := mon.GetSession(mon.ActiveSessionID()); ok {
		triggers.Activate(models.SessionMetadata{ID: active.ID, RepoPath: active.RepoPath})
	}

	sum, err := summarizer.New(summarizer.Options{
		Source:   mon,
		Sink:     hive,
		LLM:      llmClient,
		Model:    cfg.OracleModel,
		Interval: cfg.SummaryInterval,
		CronExpr: cfg.SummaryCron,
	})
	if err != nil {
		log.Fatalf("❌ Invalid summarizer configuration: %v", err)
	}
	if err := sum.Start(); err != nil {
		log.Fatalf("❌ Failed to start summarizer: %v", err)
	}

	orc := oracle.New(hive, llmClient, cfg.OracleModel, cfg.MaxContext, nil)

	mon.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "DevScope v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second, // Oracle answers wait on the LLM
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("devscope")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(hive, mon, stream)
	sessionHandler := handlers.NewSessionHandler(mon, store)
	sessionHandler.OnActivate = triggers.Activate
	sessionHandler.OnDelete = triggers.Deactivate
	activityHandler := handlers.NewActivityHandler(mon)
	oracleHandler := handlers.NewOracleHandler(orc)
	identityHandler := handlers.NewIdentityHandler(mon, store)
	controlHandler := handlers.NewControlHandler(mon, sum)
	streamHandler := handlers.NewStreamHandler(stream)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Get("/sessions", sessionHandler.List)
	api.Post("/sessions", sessionHandler.Create)
	api.Post("/sessions/:id/activate", sessionHandler.Activate)
	api.Delete("/sessions/:id", sessionHandler.Delete)
	api.Get("/activity", activityHandler.List)
	api.Post("/oracle/ask", oracleHandler.Ask)
	api.Get("/identity", identityHandler.Get)
	api.Put("/identity", identityHandler.Update)
	api.Post("/monitor/start", controlHandler.Start)
	api.Post("/monitor/stop", controlHandler.Stop)
	api.Get("/monitor/status", controlHandler.Status)
	api.Post("/summaries/run", controlHandler.Summarize)

	// WebSocket activity stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/activity", websocket.New(streamHandler.Handle))

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down DevScope...")

		mon.Stop()
		sum.Stop()
		triggers.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hive.Close(ctx); err != nil {
			log.Printf("⚠️  Error closing Hive Mind connection: %v", err)
		}
		if store != nil {
			if err := store.Close(); err != nil {
				log.Printf("⚠️  Error closing settings store: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// openSettings opens the local settings database, or returns nil when the
// path cannot be used.
func openSettings() *settings.Store {
	path, err := settings.DefaultPath()
	if err != nil {
		log.Printf("⚠️  Settings store unavailable: %v", err)
		return nil
	}
	store, err := settings.Open(path)
	if err != nil {
		log.Printf("⚠️  Failed to open settings store: %v", err)
		return nil
	}
	return store
}

// resolveIdentity prefers the stored identity, falling back to environment
// defaults. The org always resolves so uploads land in the right tenant.
func resolveIdentity(store *settings.Store, cfg *config.Config) models.Identity {
	identity := models.Identity{
		UserID:      cfg.UserID,
		DisplayName: cfg.DisplayName,
		OrgID:       cfg.OrgID,
	}
	if store != nil {
		if stored, err := store.LoadIdentity(); err != nil {
			log.Printf("⚠️  Failed to load stored identity: %v", err)
		} else if stored.UserID != "" {
			identity = stored
		}
	}
	if identity.OrgID == "" {
		identity.OrgID = cfg.OrgID
	}
	return identity
}

// restoreSessions recreates persisted sessions in the registry. Registry ids
// are fresh per process, so the stored descriptors are rewritten.
func restoreSessions(store *settings.Store, mon *monitor.Monitor) {
	if store == nil {
		return
	}
	saved, err := store.ListSessions()
	if err != nil {
		log.Printf("⚠️  Failed to list saved sessions: %v", err)
		return
	}

	for _, s := range saved {
		meta, err := mon.CreateSession(s.ProjectName, s.RepoPath, s.Goal)
		if err != nil {
			log.Printf("⚠️  Failed to restore session %q: %v", s.ProjectName, err)
			continue
		}
		if err := store.DeleteSession(s.ID); err == nil {
			_ = store.SaveSession(settings.SavedSession{
				ID:          meta.ID,
				ProjectName: meta.ProjectName,
				RepoPath:    meta.RepoPath,
				Goal:        meta.Goal,
				CreatedAt:   s.CreatedAt,
			})
		}
	}
	if len(saved) > 0 {
		log.Printf("📂 Restored %d saved session(s)", len(saved))
	}
}

// triggerSwitcher keeps exactly one git trigger alive, pointed at the active
// session's repository.
type triggerSwitcher struct {
	reporter *trigger.ContextReporter

	mu        sync.Mutex
	current   *trigger.GitTrigger
	sessionID string
}

// Activate points the commit watcher at the newly active session. Sessions
// without a repository path simply leave no watcher running.
func (t *triggerSwitcher) Activate(meta models.SessionMetadata) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.current.Stop()
		t.current = nil
	}
	t.sessionID = meta.ID
	if meta.RepoPath == "" {
		return
	}

	sessionID, repoPath := meta.ID, meta.RepoPath
	gt := trigger.NewGitTrigger(repoPath, func(commitHash string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := t.reporter.OnCommit(ctx, sessionID, repoPath, commitHash); err != nil {
				log.Printf("⚠️  Commit report failed for %s: %v", commitHash, err)
			}
		}()
	}, nil)

	if err := gt.Start(); err != nil {
		log.Printf("⚠️  Git trigger not started for %s: %v", repoPath, err)
		return
	}
	t.current = gt
}

// Deactivate stops the watcher when its session is deleted.
func (t *triggerSwitcher) Deactivate(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.sessionID == sessionID {
		t.current.Stop()
		t.current = nil
		t.sessionID = ""
	}
}

// Stop halts any running watcher.
func (t *triggerSwitcher) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Stop()
		t.current = nil
	}
}
