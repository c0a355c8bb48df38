package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path"
	"time"

	"github.com/jo-hoe/wallpaint/internal/backend/database"
	"github.com/jo-hoe/wallpaint/internal/imageio"
	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/jo-hoe/wallpaint/internal/segmentation"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultResultPrefix = "results"
)

// Writer is the part of the storage collaborator used to persist artifacts.
type Writer interface {
	Write(ctx context.Context, ref string, data []byte) error
}

// RecordUpdater attaches an artifact to a stored record.
type RecordUpdater interface {
	SetResultRef(ctx context.Context, id string, resultRef string) error
}

// PostProcessor transforms the encoded artifact before it is written.
type PostProcessor interface {
	Execute(imageData []byte) ([]byte, error)
}

type Options struct {
	// Timeout bounds the segmentation call.
	Timeout      time.Duration
	OutputFormat string
	JPEGQuality  int
	Blend        paint.BlendPolicy
	ResultPrefix string
}

// Orchestrator runs the recolour pipeline for one record at a time. It is
// safe for concurrent use as long as its collaborators are.
type Orchestrator struct {
	loader    *SourceLoader
	segmenter segmentation.Segmenter
	writer    Writer
	records   RecordUpdater
	post      PostProcessor
	observer  Observer
	opts      Options
}

type Option func(*Orchestrator)

// WithPostProcessor runs p on every encoded artifact before it is written.
func WithPostProcessor(p PostProcessor) Option {
	return func(o *Orchestrator) { o.post = p }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

func NewOrchestrator(loader *SourceLoader, segmenter segmentation.Segmenter, writer Writer, records RecordUpdater, opts Options, options ...Option) (*Orchestrator, error) {
	if loader == nil || segmenter == nil || writer == nil || records == nil {
		return nil, fmt.Errorf("pipeline collaborators must not be nil")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = imageio.FormatJPEG
	}
	if !imageio.IsAccepted(opts.OutputFormat) {
		return nil, fmt.Errorf("unsupported output format: %s", opts.OutputFormat)
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = imageio.DefaultJPEGQuality
	}
	if opts.ResultPrefix == "" {
		opts.ResultPrefix = DefaultResultPrefix
	}
	if err := opts.Blend.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		loader:    loader,
		segmenter: segmenter,
		writer:    writer,
		records:   records,
		observer:  nopObserver{},
		opts:      opts,
	}
	for _, option := range options {
		option(o)
	}
	return o, nil
}

// run carries the values one pipeline run accumulates between states.
type run struct {
	record *database.UploadRecord
	state  State
	log    *slog.Logger

	color       paint.Color
	requested   image.Point
	source      image.Image
	point       image.Point
	substituted bool
	best        paint.Candidate
	painted     *image.RGBA
	outputRef   string
}

func (r *run) enter(s State) {
	r.log.Debug("pipeline: state transition", "from", r.state, "to", s)
	r.state = s
}

// Process recolours the region of the record's source image around its click
// point. Failures never modify the source image or the record.
func (o *Orchestrator) Process(ctx context.Context, record *database.UploadRecord) Result {
	start := time.Now()
	r := &run{
		record: record,
		state:  StateReceived,
		log:    slog.With("record_id", record.ID),
	}

	result := o.process(ctx, r)

	switch res := result.(type) {
	case Success:
		r.enter(StateDone)
		o.observer.ObserveRun(OutcomeSuccess, "", time.Since(start))
		r.log.Info("pipeline: record painted",
			"output_ref", res.OutputRef,
			"score", res.Score,
			"x", res.Point.X,
			"y", res.Point.Y,
			"duration_ms", time.Since(start).Milliseconds())
	case ValidationFailure:
		r.enter(StateValidationFailed)
		o.observer.ObserveRun(OutcomeValidationFailed, res.Kind, time.Since(start))
		r.log.Warn("pipeline: validation failed", "field", res.Field, "reason", res.Reason)
	case ProcessingFailure:
		step := r.state
		r.enter(StateProcessingFailed)
		o.observer.ObserveRun(OutcomeProcessingFailed, res.Kind, time.Since(start))
		r.log.Error("pipeline: processing failed", "step", step, "kind", res.Kind, "error", res.Err)
	}
	return result
}

func (o *Orchestrator) process(ctx context.Context, r *run) Result {
	if failure, ok := o.validate(r); !ok {
		return failure
	}
	r.enter(StateValidated)

	img, _, err := o.loader.Load(ctx, r.record.SourceRef)
	if err != nil {
		return processingFailure(paint.KindSourceUnreadable, err)
	}
	r.source = img
	o.resolvePoint(r)

	candidates, err := o.segment(ctx, r)
	if err != nil {
		return processingFailure(segmentationKind(err), err)
	}
	best, err := paint.SelectBest(candidates)
	if err != nil {
		return processingFailure(paint.KindNoMasksAvailable, err)
	}
	r.best = best
	r.enter(StateSegmented)

	// ApplyColor only rejects a mask whose shape differs from the image, which
	// means the collaborator returned an unusable answer.
	if err := o.composite(r); err != nil {
		return processingFailure(paint.KindModelUnavailable, err)
	}
	r.enter(StateComposited)

	if err := o.persist(ctx, r); err != nil {
		return processingFailure(paint.KindWriteFailed, err)
	}
	r.enter(StatePersisted)

	if err := o.records.SetResultRef(ctx, r.record.ID, r.outputRef); err != nil {
		return processingFailure(paint.KindWriteFailed, fmt.Errorf("failed to attach result to record: %w", err))
	}

	return Success{
		OutputRef:   r.outputRef,
		Score:       r.best.Score,
		Point:       r.point.Sub(r.source.Bounds().Min),
		Substituted: r.substituted,
	}
}

func (o *Orchestrator) validate(r *run) (ValidationFailure, bool) {
	color, err := paint.ParseHexColor(r.record.Color)
	if err != nil {
		return ValidationFailure{Reason: err.Error(), Field: "color", Kind: paint.KindInvalidColorFormat}, false
	}
	r.color = color

	x, y := r.record.ClickX, r.record.ClickY
	if (x == nil) != (y == nil) {
		return ValidationFailure{
			Reason: "x and y must both be provided or both be omitted",
			Field:  "coordinates",
			Kind:   paint.KindInvalidCoordinates,
		}, false
	}
	if x != nil && (*x < 0 || *y < 0) {
		return ValidationFailure{
			Reason: "coordinates must not be negative",
			Field:  "coordinates",
			Kind:   paint.KindInvalidCoordinates,
		}, false
	}
	if x != nil {
		r.requested = image.Pt(*x, *y)
	}
	return ValidationFailure{}, true
}

// resolvePoint maps the requested point into image space, using the image
// centre when it falls outside.
func (o *Orchestrator) resolvePoint(r *run) {
	bounds := r.source.Bounds()
	r.point, r.substituted = paint.ClampPoint(bounds.Min.Add(r.requested), bounds)
	if r.substituted {
		r.log.Warn("pipeline: click point outside image, using centre",
			"x", r.requested.X,
			"y", r.requested.Y,
			"width", bounds.Dx(),
			"height", bounds.Dy())
	}
}

type segmentResult struct {
	candidates []paint.Candidate
	err        error
}

// segment calls the collaborator with a deadline. A collaborator that does
// not honour the context is abandoned once the deadline passes.
func (o *Orchestrator) segment(ctx context.Context, r *run) ([]paint.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan segmentResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- segmentResult{err: fmt.Errorf("segmentation panicked: %v", rec)}
			}
		}()
		candidates, err := o.segmenter.Segment(ctx, r.source, r.point)
		done <- segmentResult{candidates: candidates, err: err}
	}()

	var res segmentResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = segmentResult{err: ctx.Err()}
	}
	if res.err != nil && ctx.Err() != nil {
		res.err = fmt.Errorf("%w: %w", paint.ErrTimeout, res.err)
	}
	o.observer.ObserveSegmentation(time.Since(start), len(res.candidates), res.err)
	if res.err != nil {
		return nil, res.err
	}
	r.log.Debug("pipeline: segmentation finished", "candidates", len(res.candidates), "duration_ms", time.Since(start).Milliseconds())
	return res.candidates, nil
}

func segmentationKind(err error) paint.Kind {
	if kind, ok := paint.KindOf(err); ok && kind == paint.KindTimeout {
		return kind
	}
	return paint.KindModelUnavailable
}

func (o *Orchestrator) composite(r *run) error {
	painted, err := paint.ApplyColor(r.source, r.best.Mask, r.color, o.opts.Blend)
	if err != nil {
		return fmt.Errorf("failed to apply colour: %w", err)
	}
	r.painted = painted
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, r *run) error {
	data, err := imageio.Encode(r.painted, o.opts.OutputFormat, o.opts.JPEGQuality)
	if err != nil {
		return err
	}
	if o.post != nil {
		data, err = o.post.Execute(data)
		if err != nil {
			return fmt.Errorf("failed to post-process result: %w", err)
		}
	}

	rel := r.point.Sub(r.source.Bounds().Min)
	name := paint.ArtifactName(r.record.ID, rel, imageio.Extension(o.opts.OutputFormat))
	ref := path.Join(o.opts.ResultPrefix, name)
	if err := o.writer.Write(ctx, ref, data); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	r.outputRef = ref
	return nil
}
