package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

// CacheSource is the narrow cache contract required by the debug API.
type CacheSource interface {
	Snapshot() []vizcache.Entry
}

// Server provides a read-only HTTP view of the client's cache and metrics.
type Server struct {
	addr      string
	cache     CacheSource
	gatherer  prometheus.Gatherer
	sessionID string
	logger    *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// Options configures the debug server.
type Options struct {
	Addr      string
	SessionID string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates a new debug API server.
func NewServer(cache CacheSource, opts Options) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:7070"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		cache:     cache,
		gatherer:  opts.Gatherer,
		sessionID: opts.SessionID,
		logger:    logger.With(zap.String("mod", "httpserver")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/cache", s.handleCache)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	s.logger.Info("debug api listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"session_id": s.sessionID,
	})
}

type entryJSON struct {
	Slot        string `json:"slot"`
	Kind        string `json:"kind"`
	SubKey      string `json:"sub_key,omitempty"`
	Status      string `json:"status"`
	Generation  uint64 `json:"generation"`
	Fingerprint string `json:"fingerprint"`
	Handle      string `json:"handle,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleCache(c *gin.Context) {
	entries := s.cache.Snapshot()
	out := make([]entryJSON, 0, len(entries))
	counts := make(map[string]int)
	for _, e := range entries {
		row := entryJSON{
			Slot:        e.Slot.String(),
			Kind:        e.Slot.Kind.String(),
			SubKey:      e.Slot.SubKey,
			Status:      e.Status.String(),
			Generation:  e.Generation,
			Fingerprint: string(e.Fingerprint),
		}
		if e.Handle != nil {
			row.Handle = e.Handle.Kind().String()
			row.Size = e.Handle.Size()
		}
		if e.Err != nil {
			row.Error = e.Err.Error()
		}
		counts[row.Status]++
		out = append(out, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   out,
		"by_status": counts,
		"count":     len(out),
	})
}
