package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/config"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/ASHISH26940/manim-studio/pkg/db/memory"
	"github.com/ASHISH26940/manim-studio/pkg/db/queries"
	"github.com/ASHISH26940/manim-studio/pkg/handlers"
	"github.com/ASHISH26940/manim-studio/pkg/llm"
	"github.com/ASHISH26940/manim-studio/pkg/middleware"
	"github.com/ASHISH26940/manim-studio/pkg/notify"
	"github.com/ASHISH26940/manim-studio/pkg/pipeline"
	"github.com/ASHISH26940/manim-studio/pkg/render"
	"github.com/ASHISH26940/manim-studio/pkg/services"
	"github.com/ASHISH26940/manim-studio/pkg/storage"
	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// memoryDatabaseURL selects the in-process store instead of PostgreSQL.
const memoryDatabaseURL = "memory"

// recordStore is everything the API process reads and writes.
type recordStore interface {
	pipeline.Store
	services.UserStore
	services.AnimationStore
	services.SettingsStore
}

func main() {
	log.SetOutput(gin.DefaultWriter)
	log.SetFormatter(&log.JSONFormatter{})
	log.Info("Starting Manim Studio API...")

	cfg := config.LoadConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		log.SetLevel(log.InfoLevel)
	}

	store := openStore(cfg)
	defer db.CloseDB()

	pool, err := ants.NewPool(cfg.PipelineWorkers, ants.WithPanicHandler(func(p interface{}) {
		log.Errorf("Pipeline worker panicked: %v", p)
	}))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer func() {
		if err := pool.ReleaseTimeout(30 * time.Second); err != nil {
			log.Warnf("Worker pool did not drain before shutdown: %v", err)
		}
	}()

	videoStore, localVideos := openVideoStore(cfg)

	var renderer render.Renderer
	var callbacks handlers.CallbackSink
	if cfg.RenderMode == config.RenderModeRemote {
		callbackURL := render.CallbackURL(cfg.Host, cfg.Port)
		remote := render.NewRemote(cfg.ManimRendererURL, callbackURL, cfg.RenderCallbackSecret, cfg.RenderTimeout)
		renderer, callbacks = remote, remote
		log.Infof("Rendering remotely via %s, callbacks to %s", cfg.ManimRendererURL, callbackURL)
	} else {
		renderer = render.NewLocal(cfg.ManimPython, cfg.RenderWorkDir, cfg.RenderTimeout, videoStore)
		log.Infof("Rendering locally with %s in %s", cfg.ManimPython, cfg.RenderWorkDir)
	}

	hub := notify.NewHub()
	defer hub.Close()

	orchestrator := pipeline.New(store, llm.NewService(cfg), renderer, hub, pool)
	reconcileCtx, cancelReconcile := context.WithTimeout(context.Background(), 30*time.Second)
	// No pipeline runs before the server starts, so every processing row is orphaned.
	if n, err := orchestrator.Reconcile(reconcileCtx, 0); err != nil {
		log.Errorf("Startup reconcile failed: %v", err)
	} else if n > 0 {
		log.Warnf("Startup reconcile settled %d interrupted run(s)", n)
	}
	cancelReconcile()

	tokens := services.NewTokenService(cfg.JwtSecret)
	deps := handlers.Deps{
		Auth:           services.NewAuthService(store, tokens),
		Animations:     services.NewAnimationService(store, orchestrator),
		Settings:       services.NewSettingsService(store),
		Hub:            hub,
		Callbacks:      callbacks,
		CallbackSecret: cfg.RenderCallbackSecret,
		CORSOrigins:    cfg.CORSOrigins,
		RenderMode:     cfg.RenderMode,
	}
	if localVideos != nil {
		deps.Videos = localVideos
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	handlers.SetupRoutes(router, handlers.NewHandlers(deps), middleware.AuthMiddleware(tokens), createLimit(cfg))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Server listening on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited gracefully.")
}

func openStore(cfg *config.Config) recordStore {
	if cfg.DatabaseURL == memoryDatabaseURL {
		log.Warn("DATABASE_URL=memory: records live in process memory and are lost on exit.")
		return memory.New()
	}
	if err := db.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, db.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return queries.New(db.DB)
}

// openVideoStore picks R2 when it is configured, otherwise a directory under
// the render work dir. The second result is set only for local storage.
func openVideoStore(cfg *config.Config) (storage.VideoStore, *storage.Local) {
	if cfg.R2Enabled() {
		r2, err := storage.NewR2(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize R2 storage: %v", err)
		}
		log.Infof("Storing videos in R2 bucket %s", cfg.R2Bucket)
		return r2, nil
	}
	local, err := storage.NewLocal(filepath.Join(cfg.RenderWorkDir, "videos"))
	if err != nil {
		log.Fatalf("Failed to initialize video storage: %v", err)
	}
	return local, local
}

// createLimit returns the Redis-backed creation limiter, or nil when Redis is
// not configured.
func createLimit(cfg *config.Config) gin.HandlerFunc {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis not reachable, rate limiting fails open until it is: %v", err)
	}
	log.Infof("Limiting animation creation to %d per user per hour", cfg.CreateRatePerHour)
	return middleware.NewRateLimiter(client).CreateLimit(cfg.CreateRatePerHour)
}
