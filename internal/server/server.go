// Package server exposes the latest Snapshot and metrics over HTTP.
package server

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/format"
	"marketpulse/internal/metrics"
)

const maxSymbols = 1000

type Server struct {
	latest  *Latest
	metrics *metrics.Metrics
	loc     *time.Location
	logger  zerolog.Logger
	engine  *gin.Engine
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithLocation(loc *time.Location) Option { return func(s *Server) { s.loc = loc } }

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l.With().Str("component", "server").Logger() }
}

// New builds the routes around latest.
func New(latest *Latest, options ...Option) *Server {
	s := &Server{latest: latest, loc: time.Local, logger: zerolog.Nop()}
	for _, option := range options {
		option(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), cors())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/snapshot", s.getSnapshot)
	r.GET("/api/snapshot/text", s.getSnapshotText)
	r.GET("/api/quotes", s.getQuotes)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.engine = r
	return s
}

// Handler returns the router wrapped with gzip compression.
func (s *Server) Handler() http.Handler { return withGzip(s.engine) }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) getSnapshot(c *gin.Context) {
	snap, ok := s.latest.Load()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getSnapshotText(c *gin.Context) {
	snap, ok := s.latest.Load()
	if !ok {
		c.String(http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	c.String(http.StatusOK, format.Message(*snap, s.loc))
}

type quotesResponse struct {
	SnapshotID  uuid.UUID                   `json:"snapshot_id"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Quotes      map[string]aggregate.Priced `json:"quotes"`
	Missing     []string                    `json:"missing,omitempty"`
}

// getQuotes looks symbols up across the priced sections of the latest
// Snapshot.
func (s *Server) getQuotes(c *gin.Context) {
	q := c.Query("symbols")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing symbols query param"})
		return
	}
	symbols := splitCSV(q)
	if len(symbols) > maxSymbols {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("too many symbols (max %d)", maxSymbols)})
		return
	}
	snap, ok := s.latest.Load()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot yet"})
		return
	}
	resp := quotesResponse{SnapshotID: snap.ID, GeneratedAt: snap.GeneratedAt, Quotes: map[string]aggregate.Priced{}}
	for _, sym := range symbols {
		found := false
		for _, section := range []map[string]aggregate.Priced{snap.Crypto, snap.Stocks, snap.Metals} {
			if p, ok := section[sym]; ok {
				resp.Quotes[sym] = p
				found = true
				break
			}
		}
		if !found {
			resp.Missing = append(resp.Missing, sym)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// withGzip compresses responses when the client accepts gzip.
func withGzip(next http.Handler) http.Handler {
	pool := sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := pool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			pool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, w: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	w io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) { return g.w.Write(b) }

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
