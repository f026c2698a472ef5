// Package api implements a minimal, read-only status/health/metrics HTTP
// surface for the daemon. It is deliberately not a query API (spec §1
// Non-goals: "live queries", "in-process querying of written files"); it
// only reports the pipeline's own operating status, grounded on the
// teacher's simpler gin server (pkg/api/goprobe/server/server.go) and its
// non-huma info handlers (pkg/api/info.go).
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/nfpcapd-go/nfpcapd/internal/logging"
)

const (
	// HealthRoute reports process liveness.
	HealthRoute = "/-/health"
	// StatusRoute reports the capture pipeline's current status.
	StatusRoute = "/-/status"
	// MetricsRoute exposes prometheus metrics, when enabled.
	MetricsRoute = "/metrics"

	headerTimeout = 30 * time.Second
	maxMultipart  = 32 << 20

	// DefaultRateLimit and DefaultRateBurst bound the status server's
	// request rate, protecting it from a misbehaving monitoring poller
	// sharing the same host as the capture pipeline.
	DefaultRateLimit = 50 // requests/sec
	DefaultRateBurst = 100
)

// jsonCodec is the drop-in jsoniter encoder, matching the teacher's
// pkg/api/json package.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// writeJSON encodes v as the response body via jsoniter rather than gin's
// default encoding/json-backed c.JSON.
func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(code)
	if err := jsonCodec.NewEncoder(c.Writer).Encode(v); err != nil {
		logging.FromContext(c.Request.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// StatusProvider is implemented by internal/supervisor to report the live
// pipeline status without this package depending on it directly.
type StatusProvider interface {
	Status() Status
}

// Status summarizes the running pipeline for the status endpoint.
type Status struct {
	Interface       string    `json:"interface"`
	StartedAt       time.Time `json:"started_at"`
	LastRotation    time.Time `json:"last_rotation"`
	FlowsActive     int       `json:"flows_active"`
	FlowsEvicted    uint64    `json:"flows_evicted"`
	Rotations       uint64    `json:"rotations"`
	NodeListLength  int       `json:"nodelist_length"`
	PacketsCaptured uint64    `json:"packets_captured"`
	PacketsDropped  uint64    `json:"packets_dropped"`
}

// Server is the daemon's status HTTP server.
type Server struct {
	router *gin.Engine
	srv    *http.Server
	addr   string

	unixSocket  string
	rateLimiter *rate.Limiter
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithMetrics registers a prometheus /metrics endpoint backed by reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.router.GET(MetricsRoute, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
}

// WithProfiling registers pprof endpoints under /debug/pprof.
func WithProfiling() Option {
	return func(s *Server) {
		pprof.Register(s.router)
	}
}

// WithRateLimit overrides the default request rate limit applied to every
// route (r requests/sec, burst b).
func WithRateLimit(r float64, b int) Option {
	return func(s *Server) { s.rateLimiter = rate.NewLimiter(rate.Limit(r), b) }
}

// New constructs a status server listening on addr (host:port or
// "unix:/path/to/socket") and serving status from provider.
func New(addr string, provider StatusProvider, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = maxMultipart
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(requestLoggingMiddleware())

	s := &Server{router: router, addr: addr, rateLimiter: rate.NewLimiter(DefaultRateLimit, DefaultRateBurst)}
	if unixSocket, ok := extractUnixSocket(addr); ok {
		s.unixSocket = unixSocket
	}

	// Installed before the options run so that routes they register are
	// limited too; the limiter is looked up per request so WithRateLimit
	// still takes effect.
	router.Use(func(c *gin.Context) { rateLimitMiddleware(s.rateLimiter)(c) })

	for _, opt := range opts {
		opt(s)
	}

	router.GET(HealthRoute, func(c *gin.Context) {
		writeJSON(c, http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET(StatusRoute, func(c *gin.Context) {
		writeJSON(c, http.StatusOK, provider.Status())
	})

	return s
}

func requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.FromContext(c.Request.Context()).Debug("handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// rateLimitMiddleware rejects requests once limiter's budget is exhausted,
// protecting the status server from a misbehaving poller (spec §8 ambient
// hardening; grounded on the teacher's huma-based RateLimitMiddleware,
// adapted here to gin since this server has no huma layer).
func rateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

// Serve starts the server, blocking until it returns (Shutdown or error).
func (s *Server) Serve() error {
	s.srv = &http.Server{Handler: s.router.Handler(), ReadHeaderTimeout: headerTimeout}

	if s.unixSocket != "" {
		l, err := net.Listen("unix", s.unixSocket)
		if err != nil {
			return err
		}
		return s.srv.Serve(l)
	}

	s.srv.Addr = s.addr
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

const unixPrefix = "unix:"

func extractUnixSocket(addr string) (string, bool) {
	if len(addr) > len(unixPrefix) && addr[:len(unixPrefix)] == unixPrefix {
		return addr[len(unixPrefix):], true
	}
	return "", false
}
