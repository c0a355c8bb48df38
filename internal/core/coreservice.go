package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/singleflight"

	"github.com/jo-hoe/wallpaint/internal/backend/commands"
	"github.com/jo-hoe/wallpaint/internal/backend/commandstructure"
	"github.com/jo-hoe/wallpaint/internal/backend/database"
	"github.com/jo-hoe/wallpaint/internal/backend/storage"
	"github.com/jo-hoe/wallpaint/internal/imageio"
	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/jo-hoe/wallpaint/internal/pipeline"
	"github.com/jo-hoe/wallpaint/internal/segmentation"
)

const uploadPrefix = "uploads"

var ErrNoResult = errors.New("record has no painted result")

// UploadRequest is an upload as received from a client. X and Y are either
// both set or both nil.
type UploadRequest struct {
	Image []byte
	Color string
	X     *int
	Y     *int
}

// RecordView is a record together with the state of its artifact.
type RecordView struct {
	*database.UploadRecord
	HasResult bool `json:"hasResult"`
}

type Status struct {
	Segmenter      string `json:"segmenter"`
	SegmenterReady bool   `json:"segmenterReady"`
	SegmenterError string `json:"segmenterError,omitempty"`
	Storage        string `json:"storage"`
	Database       string `json:"database"`
	Workers        int    `json:"workers"`
	ActiveJobs     int64  `json:"activeJobs"`
	QueueLength    int    `json:"queueLength"`
	QueueCapacity  int    `json:"queueCapacity"`
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	storage         storage.Storage
	segmenter       segmentation.Segmenter
	orchestrator    *pipeline.Orchestrator
	pool            *WorkerPool
	metrics         *Metrics
	registry        *prometheus.Registry
	thumbnailer     commandstructure.Command
	group           singleflight.Group
}

// NewCoreService connects all collaborators named in config. The segmenter
// is resolved here so that an unavailable model fails startup.
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	segmenter, err := segmentation.NewSegmenter(ctx, config.Segmentation.SegmenterConfig(), &http.Client{Timeout: config.Segmentation.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize segmentation: %w", err)
	}
	return newCoreService(ctx, config, segmenter)
}

func newCoreService(ctx context.Context, config *ServiceConfig, segmenter segmentation.Segmenter) (service *CoreService, err error) {
	postProcess, err := commandstructure.BuildCommands(commandstructure.DefaultRegistry, config.Pipeline.CommandConfigs())
	if err != nil {
		return nil, fmt.Errorf("failed to build post-processing commands: %w", err)
	}

	var thumbnailer commandstructure.Command
	if config.ThumbnailWidth > 0 {
		if thumbnailer, err = commands.NewScaleCommandWithParams(config.ThumbnailWidth, 0); err != nil {
			return nil, fmt.Errorf("failed to create thumbnail command: %w", err)
		}
	}

	databaseService, err := getDatabaseService(ctx, config)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = databaseService.Close()
		}
	}()

	store, err := storage.NewStorage(config.Storage.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()
	slog.Info("storage initialized successfully", "type", config.Storage.Type)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	options := []pipeline.Option{pipeline.WithObserver(metrics)}
	if invoker := commandstructure.NewCommandInvoker(postProcess); invoker.Len() > 0 {
		options = append(options, pipeline.WithPostProcessor(invoker))
	}
	orchestrator, err := pipeline.NewOrchestrator(
		pipeline.NewSourceLoader(store, config.Pipeline.SourceCacheTTL),
		segmenter,
		store,
		databaseService,
		pipeline.Options{
			Timeout:      config.Segmentation.Timeout,
			OutputFormat: config.Pipeline.OutputFormat,
			JPEGQuality:  config.Pipeline.JPEGQuality,
			Blend:        config.Pipeline.BlendPolicy(),
		},
		options...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	pool := NewWorkerPool(config.Pipeline.Workers, config.Pipeline.QueueSize)
	if err = metrics.TrackPool(pool); err != nil {
		pool.Stop()
		return nil, err
	}

	return &CoreService{
		config:          config,
		databaseService: databaseService,
		storage:         store,
		segmenter:       segmenter,
		orchestrator:    orchestrator,
		pool:            pool,
		metrics:         metrics,
		registry:        registry,
		thumbnailer:     thumbnailer,
	}, nil
}

func getDatabaseService(ctx context.Context, config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// Registry returns the Prometheus registry holding the service metrics.
func (service *CoreService) Registry() *prometheus.Registry {
	return service.registry
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// CreateRecord validates an upload, stores the source image and creates its
// record. Invalid input is reported as a pipeline.ValidationFailure and
// nothing is stored.
func (service *CoreService) CreateRecord(ctx context.Context, req UploadRequest) (*database.UploadRecord, error) {
	record, info, err := service.validateUpload(req)
	if err != nil {
		service.metrics.RecordUpload("rejected")
		return nil, err
	}

	sourceRef := fmt.Sprintf("%s/%s.%s", uploadPrefix, uuid.NewString(), imageio.Extension(info.Format))
	if err := service.storage.Write(ctx, sourceRef, req.Image); err != nil {
		service.metrics.RecordUpload("failed")
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	record.SourceRef = sourceRef

	created, err := service.databaseService.CreateRecord(ctx, record)
	if err != nil {
		if deleteErr := service.storage.Delete(ctx, sourceRef); deleteErr != nil {
			slog.Warn("failed to remove orphaned upload", "source_ref", sourceRef, "error", deleteErr)
		}
		service.metrics.RecordUpload("failed")
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	service.metrics.RecordUpload("accepted")
	slog.Info("upload stored",
		"record_id", created.ID,
		"source_ref", sourceRef,
		"format", info.Format,
		"width", info.Width,
		"height", info.Height)
	return created, nil
}

func (service *CoreService) validateUpload(req UploadRequest) (database.UploadRecord, imageio.Info, error) {
	if int64(len(req.Image)) > service.config.Pipeline.MaxUploadBytes {
		return database.UploadRecord{}, imageio.Info{}, pipeline.ValidationFailure{
			Field:  "image",
			Reason: fmt.Sprintf("image exceeds %d bytes", service.config.Pipeline.MaxUploadBytes),
			Kind:   paint.KindInvalidImage,
		}
	}
	info, err := imageio.Sniff(req.Image)
	if err != nil {
		return database.UploadRecord{}, imageio.Info{}, pipeline.ValidationFailure{
			Field:  "image",
			Reason: fmt.Sprintf("accepted formats are %v: %v", imageio.AcceptedFormats(), err),
			Kind:   paint.KindInvalidImage,
		}
	}
	// Checked from the header so oversized images are never decoded.
	if maxPixels := service.config.Pipeline.MaxPixels; maxPixels > 0 && int64(info.Width)*int64(info.Height) > maxPixels {
		return database.UploadRecord{}, imageio.Info{}, pipeline.ValidationFailure{
			Field:  "image",
			Reason: fmt.Sprintf("image of %dx%d exceeds %d pixels", info.Width, info.Height, maxPixels),
			Kind:   paint.KindInvalidImage,
		}
	}

	colorValue := req.Color
	if colorValue == "" {
		colorValue = service.config.Pipeline.DefaultColor
	}
	normalized, err := paint.NormalizeHexColor(colorValue)
	if err != nil {
		return database.UploadRecord{}, imageio.Info{}, pipeline.ValidationFailure{
			Field:  "color",
			Reason: err.Error(),
			Kind:   paint.KindInvalidColorFormat,
		}
	}

	if (req.X == nil) != (req.Y == nil) {
		return database.UploadRecord{}, imageio.Info{}, pipeline.ValidationFailure{
			Field:  "coordinates",
			Reason: "x and y must both be provided or both be omitted",
			Kind:   paint.KindInvalidCoordinates,
		}
	}
	if req.X != nil && (*req.X < 0 || *req.Y < 0) {
		return database.UploadRecord{}, imageio.Info{}, pipeline.ValidationFailure{
			Field:  "coordinates",
			Reason: "coordinates must not be negative",
			Kind:   paint.KindInvalidCoordinates,
		}
	}

	return database.UploadRecord{Color: normalized, ClickX: req.X, ClickY: req.Y}, info, nil
}

// ProcessRecord runs the pipeline for an existing record on the worker pool.
// Concurrent calls for the same record share one run. The run is detached
// from ctx once queued so an abandoned request still completes its artifact.
func (service *CoreService) ProcessRecord(ctx context.Context, id string) (*RecordView, pipeline.Result, error) {
	record, err := service.databaseService.GetRecordByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if record == nil {
		return nil, nil, database.ErrRecordNotFound
	}

	value, err, shared := service.group.Do(id, func() (any, error) {
		var result pipeline.Result
		runCtx := context.WithoutCancel(ctx)
		if err := service.pool.SubmitAndWait(runCtx, func(ctx context.Context) {
			result = service.orchestrator.Process(ctx, record)
		}); err != nil {
			return nil, err
		}
		if result == nil {
			return nil, fmt.Errorf("pipeline run for record %s did not complete", id)
		}
		return result, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if shared {
		slog.Debug("pipeline run shared between requests", "record_id", id)
	}

	view, err := service.GetRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return view, value.(pipeline.Result), nil
}

// Paint creates a record for the upload and processes it.
func (service *CoreService) Paint(ctx context.Context, req UploadRequest) (*RecordView, pipeline.Result, error) {
	record, err := service.CreateRecord(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return service.ProcessRecord(ctx, record.ID)
}

// GetRecord returns the record and whether its artifact still exists.
func (service *CoreService) GetRecord(ctx context.Context, id string) (*RecordView, error) {
	record, err := service.databaseService.GetRecordByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if record == nil {
		return nil, database.ErrRecordNotFound
	}
	return service.view(ctx, record), nil
}

func (service *CoreService) ListRecords(ctx context.Context, limit int) ([]*RecordView, error) {
	records, err := service.databaseService.ListRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	views := make([]*RecordView, 0, len(records))
	for _, record := range records {
		views = append(views, service.view(ctx, record))
	}
	return views, nil
}

func (service *CoreService) view(ctx context.Context, record *database.UploadRecord) *RecordView {
	view := &RecordView{UploadRecord: record}
	if record.ResultRef == nil {
		return view
	}
	exists, err := service.storage.Exists(ctx, *record.ResultRef)
	if err != nil {
		slog.Warn("failed to check result artifact", "record_id", record.ID, "result_ref", *record.ResultRef, "error", err)
		return view
	}
	if !exists {
		slog.Warn("result artifact missing", "record_id", record.ID, "result_ref", *record.ResultRef)
	}
	view.HasResult = exists
	return view
}

// ReadOriginal returns the uploaded source image and its format.
func (service *CoreService) ReadOriginal(ctx context.Context, id string) ([]byte, string, error) {
	record, err := service.GetRecord(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return service.readImage(ctx, record.SourceRef)
}

// ReadResult returns the painted artifact. ErrNoResult is returned when the
// record was never painted or the artifact is gone.
func (service *CoreService) ReadResult(ctx context.Context, id string) ([]byte, string, error) {
	record, err := service.GetRecord(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if record.ResultRef == nil {
		return nil, "", ErrNoResult
	}
	data, format, err := service.readImage(ctx, *record.ResultRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrNoResult
	}
	return data, format, err
}

// Thumbnail returns the result scaled to the configured thumbnail width, or
// the original when the record has no result yet.
func (service *CoreService) Thumbnail(ctx context.Context, id string) ([]byte, string, error) {
	data, format, err := service.ReadResult(ctx, id)
	if errors.Is(err, ErrNoResult) {
		data, format, err = service.ReadOriginal(ctx, id)
	}
	if err != nil {
		return nil, "", err
	}
	if service.thumbnailer == nil {
		return data, format, nil
	}
	scaled, err := service.thumbnailer.Execute(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create thumbnail for record %s: %w", id, err)
	}
	return scaled, format, nil
}

func (service *CoreService) readImage(ctx context.Context, ref string) ([]byte, string, error) {
	data, err := service.storage.Read(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	format, err := imageio.FormatFromName(ref)
	if err != nil {
		info, sniffErr := imageio.Sniff(data)
		if sniffErr != nil {
			return nil, "", fmt.Errorf("failed to determine format of %s: %w", ref, err)
		}
		format = info.Format
	}
	return data, format, nil
}

// Status reports readiness of the segmenter and the configured backends.
func (service *CoreService) Status(ctx context.Context) Status {
	status := Status{
		Segmenter:      service.config.Segmentation.Type,
		SegmenterReady: true,
		Storage:        service.config.Storage.Type,
		Database:       service.config.Database.Type,
		Workers:        service.pool.Workers(),
		ActiveJobs:     service.pool.ActiveJobs(),
		QueueLength:    service.pool.QueueLength(),
		QueueCapacity:  service.pool.QueueCapacity(),
	}
	if hc, ok := service.segmenter.(segmentation.HealthChecker); ok {
		if err := hc.Check(ctx); err != nil {
			status.SegmenterReady = false
			status.SegmenterError = err.Error()
		}
	}
	return status
}

func (service *CoreService) Close() error {
	service.pool.Stop()
	return errors.Join(service.databaseService.Close(), service.storage.Close())
}
