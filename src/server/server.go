// Package server exposes the telemetry pipeline over HTTP: a Prometheus
// scrape endpoint, a health/backlog view, and an ingest route the serving
// layer posts engine timings to after each request.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"InferenceTelemetry/src/archive"
	"InferenceTelemetry/src/monitor"
	"InferenceTelemetry/src/sampler"
	"InferenceTelemetry/src/telemetry"
)

// Server wires the exporter, sampler, backlog tracker and optional archive
// behind a gin router.
type Server struct {
	exporter *telemetry.Exporter
	sampler  *sampler.Sampler
	tracker  *monitor.Tracker
	monitor  *monitor.Monitor
	archive  *archive.Writer // nil when archiving is disabled
	gatherer prometheus.Gatherer
	service  string
	pid      int32
	log      *zap.Logger
}

// Options carries the collaborators the server needs.
type Options struct {
	Exporter *telemetry.Exporter
	Sampler  *sampler.Sampler
	Tracker  *monitor.Tracker
	Monitor  *monitor.Monitor
	Archive  *archive.Writer
	Gatherer prometheus.Gatherer
	Service  string
	PID      int32
	Log      *zap.Logger
}

func New(opts Options) *Server {
	return &Server{
		exporter: opts.Exporter,
		sampler:  opts.Sampler,
		tracker:  opts.Tracker,
		monitor:  opts.Monitor,
		archive:  opts.Archive,
		gatherer: opts.Gatherer,
		service:  opts.Service,
		pid:      opts.PID,
		log:      opts.Log,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	engine.GET("/health", s.handleHealth)
	engine.POST("/v1/records", s.handleRecord)
	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"gpuAvailable": s.sampler.GPUAvailable(),
		"backlog":      s.monitor.Status(),
	})
}

// RecordRequest is the ingest payload: the timings the engine reported for
// one finished (or still streaming) request. Resource readings are taken
// server-side at ingest time, not trusted from the client.
type RecordRequest struct {
	RequestType string            `json:"requestType" binding:"required"`
	SystemInfo  map[string]string `json:"systemInfo"`
	StateSize   int64             `json:"stateSize"`

	LoadTime                 float64   `json:"loadTime"`
	SampleTime               float64   `json:"sampleTime"`
	SampleThroughput         float64   `json:"sampleThroughput"`
	TimeToFirstToken         float64   `json:"timeToFirstToken"`
	TimePerOutputToken       []float64 `json:"timePerOutputToken"`
	PromptEvalTime           float64   `json:"promptEvalTime"`
	PromptEvalThroughput     float64   `json:"promptEvalThroughput"`
	CompletionEvalTime       float64   `json:"completionEvalTime"`
	CompletionEvalThroughput float64   `json:"completionEvalThroughput"`
	EndToEndLatency          float64   `json:"endToEndLatency"`
	PrefillTokens            int       `json:"prefillTokens"`
	GenerationTokens         int       `json:"generationTokens"`
	KVCacheUsageRatio        float64   `json:"kvCacheUsageRatio"`
}

func (s *Server) handleRecord(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := s.tracker.Begin("record " + req.RequestType)
	task.Start()
	defer task.Finish()

	snap := s.sampler.Snapshot(c.Request.Context())
	rec := &telemetry.MeasurementRecord{
		SystemInfo:       req.SystemInfo,
		StateSize:        req.StateSize,
		CPUUtilization:   snap.CPUUtilization,
		CPURAMMiB:        snap.RAMUsedMiB,
		GPUUtilization:   snap.GPUUtilization,
		GPUMemoryUsedMiB: snap.GPUMemoryUsedMiB,
		GPUMemoryFreeMiB: snap.GPUMemoryFreeMiB,
		GPUMemoryPIDMiB:  snap.GPUMemoryPIDMiB,

		LoadTime:                 req.LoadTime,
		SampleTime:               req.SampleTime,
		SampleThroughput:         req.SampleThroughput,
		TimeToFirstToken:         req.TimeToFirstToken,
		TimePerOutputToken:       req.TimePerOutputToken,
		PromptEvalTime:           req.PromptEvalTime,
		PromptEvalThroughput:     req.PromptEvalThroughput,
		CompletionEvalTime:       req.CompletionEvalTime,
		CompletionEvalThroughput: req.CompletionEvalThroughput,
		EndToEndLatency:          req.EndToEndLatency,
		PrefillTokens:            req.PrefillTokens,
		GenerationTokens:         req.GenerationTokens,
		KVCacheUsageRatio:        req.KVCacheUsageRatio,
	}

	labels := telemetry.Labels{RequestType: req.RequestType, Service: s.service}
	s.exporter.Record(rec, labels)

	requestID := uuid.NewString()
	if s.archive != nil {
		if err := s.archive.Append(rec, labels, requestID); err != nil {
			// Archiving is best-effort; the instruments already have the data.
			s.log.Warn("failed to archive measurement record", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"requestId": requestID})
}
