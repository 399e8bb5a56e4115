package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/semaphore"

	"reportr-backend/docs"
	"reportr-backend/internal/admission"
	"reportr-backend/internal/config"
	"reportr-backend/internal/database"
	"reportr-backend/internal/events"
	"reportr-backend/internal/handlers"
	"reportr-backend/internal/middleware"
	"reportr-backend/internal/renderer"
	"reportr-backend/internal/s3storage"
	"reportr-backend/internal/services"
	"reportr-backend/internal/storage"
	"reportr-backend/internal/supabase"
)

const shutdownTimeout = 10 * time.Second

// Server owns the process-wide state: the repository, the render permit pool, the
// cleanup loop and the HTTP router.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    *storage.FileSystemRepository
	router  *gin.Engine
	cleanup *services.CleanupService
	closers []func() error
}

// New wires every dependency from cfg. Optional integrations (Postgres, Supabase, S3)
// that fail to initialise are logged and skipped; the local filesystem is enough to run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	repo, err := storage.NewFileSystemRepository(cfg.SessionsRoot, cfg.ReportsRoot)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	s := &Server{cfg: cfg, logger: logger, repo: repo}

	publishers := events.Multi{events.NewLogPublisher(logger)}
	var artifacts []services.ArtifactPublisher

	if cfg.DatabaseURL != "" {
		if store := s.openEventStore(ctx); store != nil {
			publishers = append(publishers, store)
		}
	} else {
		logger.Warn("DATABASE_URL not set, report events will only be logged")
	}

	if cfg.SupabaseEnabled() {
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			logger.Warn("failed to initialize supabase client", "error", err)
		} else {
			publishers = append(publishers, supabase.NewRealtimeClient(client))
		}
		artifacts = append(artifacts, supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseReportsBucket))
	}

	if cfg.S3Enabled() {
		store, err := s3storage.New(cfg)
		if err != nil {
			logger.Warn("failed to initialize s3 storage", "error", err)
		} else if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn("s3 bucket unavailable, reports will not be copied", "bucket", cfg.S3Bucket, "error", err)
		} else {
			artifacts = append(artifacts, store)
		}
	}

	policy := admission.DefaultPolicy()
	permits := semaphore.NewWeighted(int64(cfg.RenderConcurrency))
	sessionService := services.NewSessionService(repo, admission.NewController(policy, nil), publishers, logger)
	generation := services.NewGenerationService(repo, NewRenderer(cfg, repo), permits, publishers, logger, artifacts...)
	s.cleanup = services.NewCleanupService(repo, cfg.SessionTTL, cfg.CleanupInterval, publishers, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	configureSwagger(cfg.BaseURL)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	handlers.RegisterRoutes(router,
		handlers.NewReportsHandler(sessionService, generation),
		handlers.NewImagesHandler(sessionService, policy),
	)
	s.router = router

	return s, nil
}

// NewRenderer picks the renderer named by REPORTR_RENDERER.
func NewRenderer(cfg *config.Config, images renderer.ImageLocator) renderer.Renderer {
	switch cfg.Renderer {
	case config.RendererGotenberg:
		return renderer.NewGotenbergRenderer(cfg.GotenbergURL, images)
	case config.RendererNone:
		return renderer.Unconfigured{}
	default:
		return renderer.NewPDFRenderer(images)
	}
}

func (s *Server) openEventStore(ctx context.Context) *database.EventStore {
	db, err := database.Open(ctx, s.cfg.DatabaseURL)
	if err != nil {
		s.logger.Warn("failed to connect to database, report events will only be logged", "error", err)
		return nil
	}
	if err := database.NewMigrator(db, s.logger).Run(ctx); err != nil {
		s.logger.Warn("migration failed, report events will only be logged", "error", err)
		db.Close()
		return nil
	}
	s.closers = append(s.closers, db.Close)
	return database.NewEventStore(db)
}

// configureSwagger points the generated docs at the public host.
func configureSwagger(baseURL string) {
	if baseURL == "" {
		return
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return
	}
	docs.SwaggerInfo.Host = u.Host
	if u.Scheme == "https" {
		docs.SwaggerInfo.Schemes = []string{"https", "http"}
	} else {
		docs.SwaggerInfo.Schemes = []string{"http", "https"}
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Repository() *storage.FileSystemRepository {
	return s.repo
}

// Serve recovers sessions interrupted by a previous crash, starts the cleanup loop and
// serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	recovered, err := s.repo.RecoverInterrupted(ctx)
	if err != nil {
		s.logger.Error("failed to recover interrupted sessions", "error", err)
	} else if recovered > 0 {
		s.logger.Info("recovered interrupted sessions", "count", recovered)
	}

	s.cleanup.Start(ctx)
	defer s.cleanup.Stop()

	httpServer := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info("server starting", "port", s.cfg.Port, "renderer", s.cfg.Renderer)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the database connection, if any.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
