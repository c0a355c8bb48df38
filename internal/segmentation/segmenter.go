package segmentation

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// ForegroundLabel marks a prompt point as belonging to the wanted region.
const ForegroundLabel = 1

// Segmenter proposes candidate masks for the region containing pt. Every
// returned mask covers the full image.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error)
}

// Predictor is the stateful two-call model interface: an image is set once
// and then prompted with a point.
type Predictor interface {
	SetImage(ctx context.Context, img image.Image) error
	Predict(ctx context.Context, pt image.Point, label int, multimask bool) ([]paint.Candidate, error)
}

// HealthChecker is implemented by collaborators that can report readiness.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Func adapts an ordinary function to the Segmenter interface.
type Func func(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error)

func (f Func) Segment(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error) {
	return f(ctx, img, pt)
}

// Sequenced turns a Predictor into a Segmenter. SetImage and Predict are
// issued as one unit under a mutex since the predictor holds the current
// image between the two calls.
type Sequenced struct {
	mu        sync.Mutex
	predictor Predictor
}

func NewSequenced(predictor Predictor) *Sequenced {
	return &Sequenced{predictor: predictor}
}

func (s *Sequenced) Segment(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.predictor.SetImage(ctx, img); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	candidates, err := s.predictor.Predict(ctx, pt, ForegroundLabel, true)
	if err != nil {
		return nil, fmt.Errorf("failed to predict masks: %w", err)
	}
	return candidates, nil
}

// Check forwards to the wrapped predictor when it supports health checks.
func (s *Sequenced) Check(ctx context.Context) error {
	if hc, ok := s.predictor.(HealthChecker); ok {
		return hc.Check(ctx)
	}
	return nil
}
