package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/application"
	"github.com/bryanwahyu/uxtrap/internal/application/evaluations"
	"github.com/bryanwahyu/uxtrap/internal/config"
	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai/prompt"
	mysqlp "github.com/bryanwahyu/uxtrap/internal/infra/db/mysql"
	"github.com/bryanwahyu/uxtrap/internal/infra/db/postgres"
	"github.com/bryanwahyu/uxtrap/internal/infra/httpserver"
	"github.com/bryanwahyu/uxtrap/internal/infra/imaging"
	minioStore "github.com/bryanwahyu/uxtrap/internal/infra/storage"
	"github.com/bryanwahyu/uxtrap/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]middleware.HealthChecker{
		"ai": middleware.CheckFunc(func(context.Context) error {
			if cfg.AI.APIKey == "" {
				return errors.New("api key not configured")
			}
			return nil
		}),
	}

	// optional run journal
	journal, db, err := openJournal(ctx, cfg)
	if err != nil {
		logger.Fatal("database init error", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
		checks["database"] = &middleware.DatabaseHealthChecker{DB: db}
		logger.Info("run journal enabled", zap.String("driver", cfg.Database.Driver))
	}

	// optional export copies in minio
	var exports evaluation.ExportStore
	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx, minioStore.Options{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Prefix:    cfg.Minio.Prefix,
		})
		if err != nil {
			logger.Fatal("minio init error", zap.Error(err))
		}
		exports = store
		logger.Info("export copies enabled", zap.String("bucket", cfg.Minio.BucketName))
	}

	client, err := ai.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("ai client init error", zap.Error(err))
	}

	metrics := middleware.NewMetrics()
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
	go limiter.RunCleanup(ctx)

	prep := imaging.New(cfg.Imaging.MaxWidth, cfg.Imaging.Quality)
	prep.MaxPixels = cfg.Imaging.MaxPixels

	// init service
	svc := &evaluations.Service{
		Sessions:     session.NewStore(),
		Preprocessor: prep,
		Client:       client,
		Prompt:       prompt.Build,
		Journal:      journal,
		Exports:      exports,
		Metrics:      metrics,
		Clock:        application.SystemClock{},
		Logger:       logger.Named("evaluations"),
	}
	go sweepSessions(ctx, svc, cfg.SessionIdle(), logger)

	// init router
	handler := httpserver.NewRouter(httpserver.Options{
		Service:        svc,
		Logger:         logger.Named("http"),
		Metrics:        metrics,
		RateLimiter:    limiter,
		APIKeys:        cfg.Auth.APIKeys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxImagePixels: cfg.Imaging.MaxPixels,
		HealthChecks:   checks,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("provider", cfg.AI.Provider),
			zap.String("model", cfg.AI.Model),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if err := svc.Wait(ctx2); err != nil {
		logger.Warn("runs still in flight at exit", zap.Error(err))
	}
}

func openJournal(ctx context.Context, cfg *config.Config) (evaluation.RunJournal, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := mysqlp.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return mysqlp.NewRunRepository(db), db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewRunRepository(db), db, nil
	}
	return nil, nil, nil
}

// sweepSessions drops sessions idle longer than maxIdle.
func sweepSessions(ctx context.Context, svc *evaluations.Service, maxIdle time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.Sessions.Sweep(svc.Now(), maxIdle); n > 0 {
				logger.Debug("idle sessions removed", zap.Int("count", n))
			}
		}
	}
}
