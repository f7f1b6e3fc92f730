package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kevinaaaquil/bookreviews/config"
	"github.com/kevinaaaquil/bookreviews/handlers"
	"github.com/kevinaaaquil/bookreviews/middleware"
	"github.com/kevinaaaquil/bookreviews/service"
	"github.com/kevinaaaquil/bookreviews/store"
	"github.com/sirupsen/logrus"
)

// repository is what both store backends provide.
type repository interface {
	service.UserStore
	service.BookStore
	service.ReviewStore
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := newLogger(cfg)
	cfg.LogSummary(log)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server")
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()
	var repo repository
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		repo = store.NewMemory()
	default:
		db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.DBName, cfg.MongoTimeout)
		if err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
		defer func() {
			if err := db.Disconnect(context.Background()); err != nil {
				log.WithError(err).Error("mongodb disconnect")
			}
		}()
		if err := db.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongodb indexes: %w", err)
		}
		repo = db
	}

	var covers service.CoverStorage
	if cfg.S3Bucket != "" {
		s3Covers, err := service.NewS3Covers(ctx, service.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		covers = s3Covers
	}

	authService, err := service.NewAuthService(repo, cfg.JWTSecret, cfg.TokenTTL, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	router := handlers.NewRouter(handlers.Deps{
		Auth:          authService,
		Books:         service.NewBookService(repo, repo, repo, covers, cfg.PageSize),
		Reviews:       service.NewReviewService(repo, repo, repo),
		Metrics:       middleware.NewMetrics(),
		Logger:        log,
		CORSOrigins:   cfg.CORSOrigins,
		MaxCoverBytes: cfg.MaxCoverMB * 1024 * 1024,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.StandardLogger()
	if cfg.Production() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
