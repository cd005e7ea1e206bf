package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivebox_api_requests_total",
			Help: "Total number of requests processed by the drivebox api.",
		},
		[]string{"path", "status"},
	)
	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivebox_api_requests_errors_total",
			Help: "Total number of error requests processed by the drivebox api.",
		},
		[]string{"path", "status"},
	)
)

const internalErrorMessage = "internal server error"

func PrometheusInit(registerer prometheus.Registerer) {
	registerer.MustRegister(RequestCount)
	registerer.MustRegister(ErrorCount)
}

// ErrorHandler is middleware that returns errors in structured JSON format.
// Server errors are logged and replaced with a generic message.
func ErrorHandler(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			logger.WithField("path", c.Request.URL.Path).Error(err.Err)
			c.JSON(status, gin.H{"error": internalErrorMessage})
			return
		}

		logger.WithField("path", c.Request.URL.Path).Debug(err.Err)
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

// LogHandler is middleware that logs response times
func LogHandler(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		c.Next() // Process request
		status := c.Writer.Status()
		clientIP := c.ClientIP()
		latency := time.Since(start)
		if status >= 400 {
			logger.Errorf("from: %s | took: %dms | %d %s %s", clientIP, latency.Milliseconds(), status, method, c.Request.URL.Path)
			ErrorCount.WithLabelValues(path, http.StatusText(status)).Inc()
		} else {
			logger.Infof("from: %s | took: %dms | %d %s %s", clientIP, latency.Milliseconds(), status, method, c.Request.URL.Path)
		}
		RequestCount.WithLabelValues(path, http.StatusText(status)).Inc()
	}
}

// MetricsHandler wraps the prometheus handler with basic auth
func MetricsHandler(gatherer prometheus.Gatherer, metricsPassword string) gin.HandlerFunc {
	promHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	return func(c *gin.Context) {
		_, pass, ok := c.Request.BasicAuth()

		if !ok || metricsPassword == "" || subtle.ConstantTimeCompare([]byte(pass), []byte(metricsPassword)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="metrics"`)
			c.AbortWithError(http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}

		promHandler.ServeHTTP(c.Writer, c.Request)
	}
}
