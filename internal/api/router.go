/**
 * HTTP API for the SIRIM capture worker
 *
 * Routes:
 *   GET    /health               local store and remote reachability
 *   GET    /metrics              Prometheus metrics
 *   POST   /api/captures         score pre-recognized text blocks
 *   POST   /api/captures/image   recognize and score one label photo
 *   POST   /api/frames           submit a preview frame (latest wins)
 *   GET    /api/frames/result    latest frame result, if any
 *   POST   /api/records          save a record locally (mirrored when online)
 *   GET    /api/records          list an owner's records, newest first
 *   PUT    /api/records/:id      edit a record
 *   DELETE /api/records/:id      delete a record
 *   GET    /api/records/export   CSV or XLSX export
 *   POST   /api/sync             request an immediate sync cycle
 *
 * Every failure is answered with a single human-readable {"error": "..."}.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/logging"
	"github.com/adverant/nexus/sirim-worker/internal/metrics"
	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/adverant/nexus/sirim-worker/internal/storage"
	"github.com/adverant/nexus/sirim-worker/internal/syncer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RecordService is the local-first record API of the sync coordinator
type RecordService interface {
	SaveRecord(ctx context.Context, rec storage.Record) error
	UpdateRecord(ctx context.Context, rec storage.Record) (storage.Record, error)
	DeleteRecord(ctx context.Context, rec storage.Record) error
}

// SyncTrigger requests an immediate sync cycle
type SyncTrigger interface {
	TriggerNow(ctx context.Context, ownerID string) error
}

// Config holds API dependencies. Frames, Trigger and Probe are optional.
type Config struct {
	Processor      *processor.LabelProcessor
	Frames         *processor.FrameProcessor
	Records        RecordService
	Store          storage.RecordStore
	Trigger        SyncTrigger
	Probe          syncer.ConnectivityProbe
	Metrics        *metrics.Registry
	AllowedOrigins []string
	ExportLocation *time.Location
	Clock          func() time.Time
}

type server struct {
	cfg    Config
	now    func() time.Time
	logger *logging.Logger
}

// NewRouter builds the gin engine serving the worker API
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Processor == nil || cfg.Records == nil || cfg.Store == nil {
		return nil, fmt.Errorf("processor, record service and store are required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	s := &server{cfg: cfg, now: cfg.Clock, logger: logging.NewLogger("API")}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.errorLogger())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	api := r.Group("/api")
	api.POST("/captures", s.capture)
	api.POST("/captures/image", s.captureImage)
	api.POST("/frames", s.submitFrame)
	api.GET("/frames/result", s.frameResult)
	api.POST("/records", s.createRecord)
	api.GET("/records", s.listRecords)
	api.GET("/records/export", s.exportRecords)
	api.PUT("/records/:id", s.updateRecord)
	api.DELETE("/records/:id", s.deleteRecord)
	api.POST("/sync", s.triggerSync)
	return r, nil
}

func (s *server) errorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			s.logger.Error("Request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"status", c.Writer.Status(),
				"errors", c.Errors.String())
		}
	}
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	pending, err := s.cfg.Store.ListUnsynced(ctx)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "local store unavailable"})
		return
	}
	remote := s.cfg.Probe != nil && s.cfg.Probe.IsConnected(ctx)
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"remote":   remote,
		"unsynced": len(pending),
	})
}
