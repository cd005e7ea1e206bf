package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"drivebox.dev/api/internal"
	"drivebox.dev/api/internal/config"
	"drivebox.dev/api/internal/database"
	"drivebox.dev/api/internal/middleware"
	"drivebox.dev/api/internal/security"
	"drivebox.dev/api/internal/service"
	"drivebox.dev/api/internal/storage"
	"drivebox.dev/api/internal/tokens"
)

// Version tag is populated during build
var Version = "Development"
var logger = logrus.New()

func init() {
	// Enviroment variables, a missing .env is fine when the environment is set externally
	if err := config.LoadEnvFile(); err != nil {
		logger.Warnf("No .env file loaded: %s", err)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	return &logrus.Logger{
		Out: os.Stderr,
		Formatter: &logrus.TextFormatter{
			DisableTimestamp: cfg.IsProduction(),
			FullTimestamp:    true,
			TimestampFormat:  time.DateTime,
		},
		Hooks:        logger.Hooks,
		Level:        level,
		ExitFunc:     os.Exit,
		ReportCaller: false,
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (service.BlobStore, error) {
	if cfg.BlobBackend == config.BlobBackendMinio {
		return storage.NewMinio(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket)
	}
	return storage.NewDisk(cfg.FileStoragePath)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %s", err)
	}
	logger = newLogger(cfg)
	if cfg.IsProduction() {
		logger.Info("Enviroment 'Production'")
	} else {
		logger.Info("Enviroment 'Development'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.ConnectDB(cfg.Database.DSN())
	if err != nil {
		logger.Fatalf("Database connection error: %s", err)
	}
	defer db.Close()
	logger.Infof("Connected to %s database", cfg.Database.Name)

	if err := database.RunMigrations(ctx, db); err != nil {
		logger.Fatalf("Database migration error: %s", err)
	}

	// Blob storage
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Blob storage error: %s", err)
	}
	logger.Infof("Using '%s' blob storage", cfg.BlobBackend)

	queries := database.New(db)
	tokenService := tokens.NewService(tokens.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})

	// Initialize HTTP server and routes
	logger.Info("Registering middleware and api routes...")
	authService := service.NewAuthService(queries, tokenService, logger).WithPasswordPolicy(security.PasswordPolicy{
		MinLength: cfg.PasswordMinLength,
		MinScore:  cfg.PasswordMinScore,
	})
	handler := &internal.Handler{
		Logger:        logger,
		Auth:          authService,
		Files:         service.NewFileService(queries, blobs, logger),
		Database:      queries,
		MaxUploadSize: cfg.MaxUploadSize,
	}
	middleware.PrometheusInit(prometheus.DefaultRegisterer)
	gin.SetMode(gin.ReleaseMode)
	router, err := internal.NewRouter(handler, internal.RouterOptions{
		Logger:          logger,
		Verifier:        tokenService,
		AllowedOrigins:  cfg.AllowedOrigins,
		TrustedProxies:  []string{"127.0.0.1"},
		AuthRateLimit:   cfg.AuthRateLimit,
		MaxUploadSize:   cfg.MaxUploadSize,
		MetricsPassword: cfg.MetricsPassword,
	})
	if err != nil {
		logger.Fatalf("Router setup error: %s", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Listen and serve
	go func() {
		logger.Infof("Drivebox API (%s) is online '%s'", Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server fatal error: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %s", err)
		return
	}
	logger.Info("Server shutdown successfully")
}
