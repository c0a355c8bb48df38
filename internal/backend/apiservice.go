package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jo-hoe/wallpaint/internal/backend/database"
	"github.com/jo-hoe/wallpaint/internal/common"
	"github.com/jo-hoe/wallpaint/internal/core"
	"github.com/jo-hoe/wallpaint/internal/imageio"
	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/jo-hoe/wallpaint/internal/pipeline"
)

const (
	defaultListLimit  = 50
	defaultSwatchSize = 64
	maxSwatchSize     = 1024
	// multipart framing on top of the image itself
	formOverheadBytes = 1 << 20
)

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

// paintForm holds the non-file fields of an upload.
type paintForm struct {
	Color string `form:"color" validate:"omitempty,hexcolor6"`
	X     string `form:"x" validate:"omitempty,numeric"`
	Y     string `form:"y" validate:"omitempty,numeric"`
}

type paintResponse struct {
	Record  *core.RecordView `json:"record"`
	Outcome pipeline.Outcome `json:"outcome"`
	Result  any              `json:"result,omitempty"`
	Message string           `json:"message,omitempty"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.coreService.Registry(), promhttp.HandlerOpts{})))

	api := e.Group("/api")
	if s.config.RateLimit > 0 {
		api.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.config.RateLimit),
				Burst:     max(1, int(s.config.RateLimit)),
				ExpiresIn: 3 * time.Minute,
			},
		)))
	}

	upload := middleware.BodyLimit(fmt.Sprintf("%dK", (s.config.Pipeline.MaxUploadBytes+formOverheadBytes)/1024))
	api.POST("/paint", s.paintHandler, upload)
	api.GET("/paint", s.listHandler)
	api.GET("/paint/:id", s.recordHandler)
	api.POST("/paint/:id/process", s.processHandler)
	api.GET("/paint/:id/original", s.originalHandler)
	api.GET("/paint/:id/result", s.resultHandler)
	api.GET("/paint/:id/thumbnail", s.thumbnailHandler)
	api.GET("/swatch/:hex", s.swatchHandler)
	api.GET("/status", s.statusHandler)
}

func (s *APIService) paintHandler(ctx echo.Context) error {
	var form paintForm
	if err := ctx.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to parse form")
	}
	if err := ctx.Validate(&form); err != nil {
		return err
	}

	imageData, err := s.readUpload(ctx)
	if err != nil {
		return err
	}
	req := core.UploadRequest{Image: imageData, Color: form.Color}
	if req.X, err = optionalInt(form.X); err != nil {
		return fieldError("x", "must be an integer")
	}
	if req.Y, err = optionalInt(form.Y); err != nil {
		return fieldError("y", "must be an integer")
	}

	view, result, err := s.coreService.Paint(ctx.Request().Context(), req)
	if err != nil {
		return s.serviceError(ctx, "paintHandler", err)
	}
	return s.writeResult(ctx, view, result, http.StatusCreated)
}

func (s *APIService) processHandler(ctx echo.Context) error {
	view, result, err := s.coreService.ProcessRecord(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return s.serviceError(ctx, "processHandler", err)
	}
	return s.writeResult(ctx, view, result, http.StatusOK)
}

func (s *APIService) readUpload(ctx echo.Context) ([]byte, error) {
	file, err := ctx.FormFile("image")
	if err != nil {
		slog.Warn("paintHandler: missing uploaded file", "status", http.StatusBadRequest, "error", err)
		return nil, fieldError("image", "is required")
	}
	src, err := file.Open()
	if err != nil {
		slog.Error("paintHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("paintHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	// one byte past the limit is enough for the size check downstream
	data, err := io.ReadAll(io.LimitReader(src, s.config.Pipeline.MaxUploadBytes+1))
	if err != nil {
		slog.Error("paintHandler: failed to read uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}
	return data, nil
}

func (s *APIService) writeResult(ctx echo.Context, view *core.RecordView, result pipeline.Result, successStatus int) error {
	response := paintResponse{Record: view, Outcome: result.Outcome(), Result: result}
	switch result.(type) {
	case pipeline.Success:
		return ctx.JSON(successStatus, response)
	case pipeline.ValidationFailure:
		return ctx.JSON(http.StatusUnprocessableEntity, response)
	default:
		response.Message = "processing failed"
		return ctx.JSON(http.StatusInternalServerError, response)
	}
}

// serviceError maps core errors to HTTP errors without exposing internals.
func (s *APIService) serviceError(ctx echo.Context, handler string, err error) error {
	if kind, ok := paint.KindOf(err); ok && kind.IsValidation() {
		var validation pipeline.ValidationFailure
		if errors.As(err, &validation) {
			return fieldError(validation.Field, validation.Reason)
		}
		return fieldError(string(kind), kind.Err().Error())
	}
	switch {
	case errors.Is(err, database.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, core.ErrNoResult):
		return echo.NewHTTPError(http.StatusNotFound, "record has no painted result")
	case errors.Is(err, core.ErrQueueFull), errors.Is(err, core.ErrPoolStopped):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is busy, retry later")
	default:
		slog.Error(handler+": request failed", "id", ctx.Param("id"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
}

func (s *APIService) listHandler(ctx echo.Context) error {
	limit := defaultListLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return fieldError("limit", "must be a non-negative integer")
		}
		limit = parsed
	}
	views, err := s.coreService.ListRecords(ctx.Request().Context(), limit)
	if err != nil {
		return s.serviceError(ctx, "listHandler", err)
	}
	return ctx.JSON(http.StatusOK, views)
}

func (s *APIService) recordHandler(ctx echo.Context) error {
	view, err := s.coreService.GetRecord(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return s.serviceError(ctx, "recordHandler", err)
	}
	return ctx.JSON(http.StatusOK, view)
}

func (s *APIService) originalHandler(ctx echo.Context) error {
	data, format, err := s.coreService.ReadOriginal(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return s.serviceError(ctx, "originalHandler", err)
	}
	return ctx.Blob(http.StatusOK, imageio.ContentType(format), data)
}

func (s *APIService) resultHandler(ctx echo.Context) error {
	data, format, err := s.coreService.ReadResult(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return s.serviceError(ctx, "resultHandler", err)
	}
	setNoCache(ctx)
	return ctx.Blob(http.StatusOK, imageio.ContentType(format), data)
}

func (s *APIService) thumbnailHandler(ctx echo.Context) error {
	data, format, err := s.coreService.Thumbnail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return s.serviceError(ctx, "thumbnailHandler", err)
	}
	setNoCache(ctx)
	return ctx.Blob(http.StatusOK, imageio.ContentType(format), data)
}

func (s *APIService) swatchHandler(ctx echo.Context) error {
	c, err := paint.ParseHexColor(ctx.Param("hex"))
	if err != nil {
		return fieldError("hex", err.Error())
	}
	size := defaultSwatchSize
	if raw := ctx.QueryParam("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSwatchSize {
			return fieldError("size", fmt.Sprintf("must be between 1 and %d", maxSwatchSize))
		}
		size = parsed
	}

	data, err := imageio.RenderSwatch(c, size)
	if err != nil {
		slog.Error("swatchHandler: failed to render swatch", "color", c.StorageString(), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render swatch")
	}
	ctx.Response().Header().Set("Cache-Control", "public, max-age=86400, immutable")
	return ctx.Blob(http.StatusOK, imageio.ContentType(imageio.FormatPNG), data)
}

func (s *APIService) statusHandler(ctx echo.Context) error {
	status := s.coreService.Status(ctx.Request().Context())
	code := http.StatusOK
	if !status.SegmenterReady {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, status)
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store")
}

func fieldError(field, reason string) error {
	return echo.NewHTTPError(http.StatusBadRequest, common.ValidationErrorResponse{
		Message: "received invalid request body",
		Fields:  []common.FieldError{{Field: field, Reason: reason}},
	})
}

func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
