package segmentation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

const (
	TypeHTTP      = "sam-http"
	TypeFloodFill = "floodfill"
)

const healthCheckTimeout = 10 * time.Second

type Config struct {
	Type       string
	Endpoint   string
	Checkpoint string
	// ChannelOrder of the pixels sent to a remote model; empty means RGB.
	ChannelOrder string
	Tolerances   []float64
}

// NewSegmenter builds the configured collaborator. Remote collaborators are
// health checked before they are returned so a missing or mismatched model
// fails at startup rather than on the first request.
func NewSegmenter(ctx context.Context, cfg Config, client *http.Client) (Segmenter, error) {
	switch cfg.Type {
	case TypeHTTP:
		predictor, err := NewHTTPPredictor(cfg.Endpoint, cfg.Checkpoint, client)
		if err != nil {
			return nil, err
		}
		if cfg.ChannelOrder != "" {
			order, err := paint.ParseChannelOrder(cfg.ChannelOrder)
			if err != nil {
				return nil, err
			}
			predictor.SetChannelOrder(order)
		}
		segmenter := NewSequenced(predictor)

		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := segmenter.Check(checkCtx); err != nil {
			return nil, fmt.Errorf("segmentation model unavailable: %w", err)
		}
		slog.Info("segmentation: remote model ready", "endpoint", cfg.Endpoint, "checkpoint", cfg.Checkpoint, "channel_order", predictor.order)
		return segmenter, nil
	case TypeFloodFill:
		segmenter, err := NewFloodFill(cfg.Tolerances)
		if err != nil {
			return nil, err
		}
		slog.Info("segmentation: using flood fill", "tolerances", segmenter.tolerances)
		return segmenter, nil
	default:
		return nil, fmt.Errorf("unsupported segmentation type: %s", cfg.Type)
	}
}
