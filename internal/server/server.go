package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"imgsearch/internal/blob"
	"imgsearch/internal/ingest"
	"imgsearch/internal/metrics"
	"imgsearch/internal/models"
	"imgsearch/internal/queue"
	"imgsearch/internal/storage"
)

type Ingester interface {
	Process(ctx context.Context, src ingest.Source, observe ingest.Observer) (*models.Image, error)
}

type BlobReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

// QueryTokenizer turns a search query into the form stored in indexed_text.
type QueryTokenizer interface {
	Join(text string) string
}

type Deps struct {
	Config   *models.Config
	Index    storage.Index
	Blobs    BlobReader
	Pipeline Ingester
	Queue    *queue.Queue
	Query    QueryTokenizer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Server struct {
	cfg      *models.Config
	router   *gin.Engine
	http     *http.Server
	index    storage.Index
	blobs    BlobReader
	pipeline Ingester
	queue    *queue.Queue
	query    QueryTokenizer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewServer(d Deps) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger), requestMetrics(d.Metrics))
	r.Static(blob.FilesRoute, d.Config.StoragePath)

	s := &Server{
		cfg:      d.Config,
		router:   r,
		index:    d.Index,
		blobs:    d.Blobs,
		pipeline: d.Pipeline,
		queue:    d.Queue,
		query:    d.Query,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}

	r.GET("/search", s.handleSearch)
	r.POST("/upload", s.handleUpload)
	r.GET("/image/:id", s.handleGetImage)
	r.PATCH("/image/:id", s.handleRename)
	r.GET("/image/:id/thumbnail", s.handleThumbnail)

	r.POST("/queue", s.handleQueueSubmit)
	r.GET("/queue", s.handleQueueList)
	r.GET("/queue/events", s.handleQueueEvents)
	r.GET("/queue/:id", s.handleQueueGet)
	r.DELETE("/queue/:id", s.handleQueueDismiss)

	r.GET("/debug/dump", s.handleDebugDump)
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	s.http = &http.Server{
		Addr:              d.Config.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.cfg.ServerAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)))
	}
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrPreprocess):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it as {error, details} with the mapped status.
func (s *Server) fail(c *gin.Context, op, msg string, err error) {
	status := statusFor(err)
	attrs := []any{slog.String("op", op), slog.String("error", err.Error())}
	if status >= 500 {
		s.logger.Error(msg, attrs...)
	} else {
		s.logger.Warn(msg, attrs...)
	}
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}
