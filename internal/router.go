package internal

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"drivebox.dev/api/internal/middleware"
)

type RouterOptions struct {
	Logger          logrus.FieldLogger
	Verifier        middleware.TokenVerifier
	AllowedOrigins  []string
	TrustedProxies  []string
	AuthRateLimit   string
	MaxUploadSize   int64
	MetricsPassword string
	// Gatherer serves /metrics; nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewRouter registers middleware and api routes on a fresh gin engine.
func NewRouter(h *Handler, opts RouterOptions) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	if opts.MaxUploadSize > 0 {
		router.MaxMultipartMemory = min(opts.MaxUploadSize, 8<<20)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.LogHandler(opts.Logger))
	router.Use(middleware.ErrorHandler(opts.Logger))
	router.Use(InitCors(opts.AllowedOrigins))

	authLimit, err := middleware.RateLimiter(opts.AuthRateLimit)
	if err != nil {
		return nil, err
	}

	api := router.Group("/api")
	api.GET("/health", h.Health)

	// Auth
	auth := api.Group("/auth", authLimit)
	auth.POST("/signup", h.Signup)
	auth.POST("/signin", h.Signin)
	auth.POST("/signin/new_token", h.RenewToken)
	auth.GET("/logout", h.Logout)
	auth.GET("/info", middleware.Protected(opts.Verifier), h.Info)

	// Files
	files := api.Group("/file", middleware.Protected(opts.Verifier))
	files.POST("/upload", h.UploadFile)
	files.GET("/list", h.ListFiles)
	files.GET("/:id", h.GetFile)
	files.GET("/download/:id", h.DownloadFile)
	files.DELETE("/delete/:id", h.DeleteFile)
	files.PUT("/update/:id", h.UpdateFile)

	if opts.MetricsPassword != "" {
		gatherer := opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET("/metrics", middleware.MetricsHandler(gatherer, opts.MetricsPassword))
	}

	return router, nil
}
