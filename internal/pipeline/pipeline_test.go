package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/wallpaint/internal/backend/database"
	"github.com/jo-hoe/wallpaint/internal/imageio"
	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/jo-hoe/wallpaint/internal/segmentation"
)

type memStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	writeErr error
	reads    int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Read(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%s: not found", ref)
	}
	return data, nil
}

func (s *memStorage) Exists(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok, nil
}

func (s *memStorage) remove(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
}

func (s *memStorage) Write(_ context.Context, ref string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.objects[ref] = data
	return nil
}

type fakeRecords struct {
	mu      sync.Mutex
	results map[string]string
	err     error
}

func (f *fakeRecords) SetResultRef(_ context.Context, id string, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.results == nil {
		f.results = map[string]string{}
	}
	f.results[id] = ref
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
	kinds    []paint.Kind
}

func (c *countingObserver) ObserveRun(outcome Outcome, kind paint.Kind, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
	c.kinds = append(c.kinds, kind)
}

func (c *countingObserver) ObserveSegmentation(time.Duration, int, error) {}

type harness struct {
	storage  *memStorage
	records  *fakeRecords
	observer *countingObserver
	orch     *Orchestrator
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	data, err := imageio.Encode(img, imageio.FormatPNG, 0)
	require.NoError(t, err)
	return data
}

// fullMask proposes a single mask covering the whole image.
var fullMask = segmentation.Func(func(_ context.Context, img image.Image, _ image.Point) ([]paint.Candidate, error) {
	b := img.Bounds()
	return []paint.Candidate{{Mask: paint.NewFullMask(b.Dx(), b.Dy()), Score: 1.0}}, nil
})

func newHarness(t *testing.T, seg segmentation.Segmenter, opts Options, options ...Option) *harness {
	t.Helper()
	h := &harness{
		storage:  newMemStorage(),
		records:  &fakeRecords{},
		observer: &countingObserver{},
	}
	if opts.OutputFormat == "" {
		// PNG keeps pixel assertions exact.
		opts.OutputFormat = imageio.FormatPNG
	}
	options = append(options, WithObserver(h.observer))
	orch, err := NewOrchestrator(NewSourceLoader(h.storage, 0), seg, h.storage, h.records, opts, options...)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func intPtr(v int) *int { return &v }

func newRecord(id string, x, y *int, hex string) *database.UploadRecord {
	return &database.UploadRecord{ID: id, SourceRef: "uploads/" + id + ".png", ClickX: x, ClickY: y, Color: hex}
}

func TestProcess_EndToEnd(t *testing.T) {
	h := newHarness(t, fullMask, Options{})
	h.storage.objects["uploads/rec1.png"] = solidPNG(t, 10, 10, color.Black)

	result := h.orch.Process(context.Background(), newRecord("rec1", intPtr(5), intPtr(5), "#00ff00"))

	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)
	assert.Equal(t, "results/painted_rec1_5_5.png", success.OutputRef)
	assert.Equal(t, image.Pt(5, 5), success.Point)
	assert.False(t, success.Substituted)
	assert.InDelta(t, 1.0, success.Score, 1e-9)
	assert.Equal(t, OutcomeSuccess, result.Outcome())

	img, _, err := imageio.Decode(h.storage.objects[success.OutputRef])
	require.NoError(t, err)
	for y := range 10 {
		for x := range 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			require.Equal(t, [3]uint32{0, 255, 0}, [3]uint32{r >> 8, g >> 8, b >> 8}, "pixel %d,%d", x, y)
		}
	}
	assert.Equal(t, success.OutputRef, h.records.results["rec1"])
	assert.Equal(t, []Outcome{OutcomeSuccess}, h.observer.outcomes)
}

func TestProcess_OutOfBoundsUsesCentre(t *testing.T) {
	var seen image.Point
	seg := segmentation.Func(func(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error) {
		seen = pt
		return fullMask(ctx, img, pt)
	})
	h := newHarness(t, seg, Options{})
	h.storage.objects["uploads/rec2.png"] = solidPNG(t, 100, 100, color.White)

	result := h.orch.Process(context.Background(), newRecord("rec2", intPtr(1000), intPtr(1000), "#ff0000"))

	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)
	assert.Equal(t, image.Pt(50, 50), seen)
	assert.Equal(t, image.Pt(50, 50), success.Point)
	assert.True(t, success.Substituted)
	assert.Equal(t, "results/painted_rec2_50_50.png", success.OutputRef)
}

func TestProcess_AbsentCoordinatesUseOrigin(t *testing.T) {
	var seen image.Point
	seg := segmentation.Func(func(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error) {
		seen = pt
		return fullMask(ctx, img, pt)
	})
	h := newHarness(t, seg, Options{})
	h.storage.objects["uploads/rec3.png"] = solidPNG(t, 4, 4, color.White)

	result := h.orch.Process(context.Background(), newRecord("rec3", nil, nil, "#123456"))

	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)
	assert.Equal(t, image.Pt(0, 0), seen)
	assert.False(t, success.Substituted)
}

func TestProcess_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		rec   *database.UploadRecord
		field string
		kind  paint.Kind
	}{
		{"bad colour", newRecord("v1", nil, nil, "#zzzzzz"), "color", paint.KindInvalidColorFormat},
		{"short colour", newRecord("v2", nil, nil, "#12345"), "color", paint.KindInvalidColorFormat},
		{"one coordinate", newRecord("v3", intPtr(1), nil, "#ffffff"), "coordinates", paint.KindInvalidCoordinates},
		{"negative", newRecord("v4", intPtr(-1), intPtr(2), "#ffffff"), "coordinates", paint.KindInvalidCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fullMask, Options{})
			result := h.orch.Process(context.Background(), tt.rec)

			failure, ok := result.(ValidationFailure)
			require.True(t, ok, "expected validation failure, got %#v", result)
			assert.Equal(t, tt.field, failure.Field)
			assert.Equal(t, tt.kind, failure.Kind)
			assert.ErrorIs(t, failure, tt.kind.Err())
			assert.Zero(t, h.storage.reads, "source must not be loaded")
			assert.Empty(t, h.records.results)
		})
	}
}

func TestProcess_ProcessingFailures(t *testing.T) {
	boom := errors.New("boom")
	emptySeg := segmentation.Func(func(context.Context, image.Image, image.Point) ([]paint.Candidate, error) {
		return nil, nil
	})
	failingSeg := segmentation.Func(func(context.Context, image.Image, image.Point) ([]paint.Candidate, error) {
		return nil, boom
	})
	panickingSeg := segmentation.Func(func(context.Context, image.Image, image.Point) ([]paint.Candidate, error) {
		panic("model crashed")
	})
	wrongSizeSeg := segmentation.Func(func(context.Context, image.Image, image.Point) ([]paint.Candidate, error) {
		return []paint.Candidate{{Mask: paint.NewFullMask(3, 3), Score: 1}}, nil
	})

	tests := []struct {
		name       string
		seg        segmentation.Segmenter
		noSource   bool
		corrupt    bool
		writeErr   error
		recordErr  error
		kind       paint.Kind
		wantResult bool
	}{
		{name: "missing source", seg: fullMask, noSource: true, kind: paint.KindSourceUnreadable},
		{name: "undecodable source", seg: fullMask, corrupt: true, kind: paint.KindSourceUnreadable},
		{name: "segmenter error", seg: failingSeg, kind: paint.KindModelUnavailable},
		{name: "segmenter panic", seg: panickingSeg, kind: paint.KindModelUnavailable},
		{name: "mask size mismatch", seg: wrongSizeSeg, kind: paint.KindModelUnavailable},
		{name: "no masks", seg: emptySeg, kind: paint.KindNoMasksAvailable},
		{name: "write failure", seg: fullMask, writeErr: boom, kind: paint.KindWriteFailed},
		{name: "record update failure", seg: fullMask, recordErr: boom, kind: paint.KindWriteFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.seg, Options{})
			source := solidPNG(t, 8, 8, color.Black)
			switch {
			case tt.corrupt:
				h.storage.objects["uploads/p1.png"] = []byte("definitely not an image")
			case !tt.noSource:
				h.storage.objects["uploads/p1.png"] = source
			}
			h.storage.writeErr = tt.writeErr
			h.records.err = tt.recordErr

			result := h.orch.Process(context.Background(), newRecord("p1", intPtr(1), intPtr(1), "#00ff00"))

			failure, ok := result.(ProcessingFailure)
			require.True(t, ok, "expected processing failure, got %#v", result)
			assert.Equal(t, tt.kind, failure.Kind)
			assert.Equal(t, tt.kind.Err().Error(), failure.Reason)
			assert.ErrorIs(t, failure, tt.kind.Err())
			assert.Empty(t, h.records.results, "record must not be mutated")
			if !tt.noSource && !tt.corrupt {
				assert.Equal(t, source, h.storage.objects["uploads/p1.png"], "source must not be modified")
			}
			assert.Equal(t, []Outcome{OutcomeProcessingFailed}, h.observer.outcomes)
		})
	}
}

func TestProcess_SourceDeletedAfterCachedRun(t *testing.T) {
	s := newMemStorage()
	s.objects["uploads/c1.png"] = solidPNG(t, 4, 4, color.Black)
	records := &fakeRecords{}
	orch, err := NewOrchestrator(NewSourceLoader(s, 5*time.Minute), fullMask, s, records, Options{OutputFormat: imageio.FormatPNG})
	require.NoError(t, err)
	rec := newRecord("c1", intPtr(1), intPtr(1), "#00ff00")

	first := orch.Process(context.Background(), rec)
	require.IsType(t, Success{}, first)

	s.remove("uploads/c1.png")
	records.results = nil

	second := orch.Process(context.Background(), rec)
	failure, ok := second.(ProcessingFailure)
	require.True(t, ok, "expected processing failure, got %#v", second)
	assert.Equal(t, paint.KindSourceUnreadable, failure.Kind)
	assert.Empty(t, records.results, "record must not be mutated")
}

func TestProcess_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// Ignores its context, so the orchestrator has to abandon it.
	stuck := segmentation.Func(func(context.Context, image.Image, image.Point) ([]paint.Candidate, error) {
		<-release
		return nil, nil
	})
	h := newHarness(t, stuck, Options{Timeout: 20 * time.Millisecond})
	h.storage.objects["uploads/t1.png"] = solidPNG(t, 4, 4, color.Black)

	result := h.orch.Process(context.Background(), newRecord("t1", nil, nil, "#00ff00"))

	failure, ok := result.(ProcessingFailure)
	require.True(t, ok, "expected processing failure, got %#v", result)
	assert.Equal(t, paint.KindTimeout, failure.Kind)
	assert.Equal(t, "timeout", failure.Reason)
	assert.Empty(t, h.records.results)
}

func TestProcess_TimeoutHonouredByContext(t *testing.T) {
	seg := segmentation.Func(func(ctx context.Context, _ image.Image, _ image.Point) ([]paint.Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newHarness(t, seg, Options{Timeout: 10 * time.Millisecond})
	h.storage.objects["uploads/t2.png"] = solidPNG(t, 4, 4, color.Black)

	result := h.orch.Process(context.Background(), newRecord("t2", nil, nil, "#00ff00"))
	failure, ok := result.(ProcessingFailure)
	require.True(t, ok)
	assert.Equal(t, paint.KindTimeout, failure.Kind)
}

func TestProcess_SelectsBestMask(t *testing.T) {
	seg := segmentation.Func(func(_ context.Context, img image.Image, _ image.Point) ([]paint.Candidate, error) {
		b := img.Bounds()
		left := paint.NewMask(b.Dx(), b.Dy())
		left.Set(0, 0, true)
		right := paint.NewMask(b.Dx(), b.Dy())
		right.Set(1, 0, true)
		other := paint.NewMask(b.Dx(), b.Dy())
		other.Set(1, 1, true)
		return []paint.Candidate{{Mask: left, Score: 0.3}, {Mask: right, Score: 0.9}, {Mask: other, Score: 0.9}}, nil
	})
	h := newHarness(t, seg, Options{})
	h.storage.objects["uploads/s1.png"] = solidPNG(t, 2, 2, color.Black)

	result := h.orch.Process(context.Background(), newRecord("s1", intPtr(1), intPtr(0), "#0a141e"))
	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)
	assert.InDelta(t, 0.9, success.Score, 1e-9)

	img, _, err := imageio.Decode(h.storage.objects[success.OutputRef])
	require.NoError(t, err)
	r, g, b, _ := img.At(1, 0).RGBA()
	assert.Equal(t, [3]uint32{10, 20, 30}, [3]uint32{r >> 8, g >> 8, b >> 8})
	r, g, b, _ = img.At(1, 1).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r >> 8, g >> 8, b >> 8})
}

func TestProcess_BlendPolicy(t *testing.T) {
	h := newHarness(t, fullMask, Options{Blend: paint.BlendPolicy{Enabled: true, Alpha: 0.5}})
	h.storage.objects["uploads/b1.png"] = solidPNG(t, 2, 2, color.RGBA{R: 200, G: 100, B: 0, A: 255})

	result := h.orch.Process(context.Background(), newRecord("b1", nil, nil, "#000000"))
	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)

	img, _, err := imageio.Decode(h.storage.objects[success.OutputRef])
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.InDelta(t, 100, float64(r>>8), 1)
	assert.InDelta(t, 50, float64(g>>8), 1)
	assert.InDelta(t, 0, float64(b>>8), 1)
}

type suffixPost struct{ calls int }

func (p *suffixPost) Execute(data []byte) ([]byte, error) {
	p.calls++
	return append(data, []byte("post")...), nil
}

func TestProcess_PostProcessor(t *testing.T) {
	post := &suffixPost{}
	h := newHarness(t, fullMask, Options{}, WithPostProcessor(post))
	h.storage.objects["uploads/pp.png"] = solidPNG(t, 2, 2, color.Black)

	result := h.orch.Process(context.Background(), newRecord("pp", nil, nil, "#ffffff"))
	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)
	assert.Equal(t, 1, post.calls)
	assert.Equal(t, "post", string(h.storage.objects[success.OutputRef][len(h.storage.objects[success.OutputRef])-4:]))
}

func TestProcess_JPEGOutputName(t *testing.T) {
	h := newHarness(t, fullMask, Options{OutputFormat: imageio.FormatJPEG})
	h.storage.objects["uploads/j1.png"] = solidPNG(t, 6, 6, color.Black)

	result := h.orch.Process(context.Background(), newRecord("j1", intPtr(2), intPtr(3), "#ff0000"))
	success, ok := result.(Success)
	require.True(t, ok, "expected success, got %#v", result)
	assert.Equal(t, "results/painted_j1_2_3.jpg", success.OutputRef)

	info, err := imageio.Sniff(h.storage.objects[success.OutputRef])
	require.NoError(t, err)
	assert.Equal(t, imageio.FormatJPEG, info.Format)
}

func TestNewOrchestrator_Errors(t *testing.T) {
	s := newMemStorage()
	loader := NewSourceLoader(s, 0)

	_, err := NewOrchestrator(nil, fullMask, s, &fakeRecords{}, Options{})
	assert.Error(t, err)

	_, err = NewOrchestrator(loader, fullMask, s, &fakeRecords{}, Options{OutputFormat: "gif"})
	assert.Error(t, err)

	_, err = NewOrchestrator(loader, fullMask, s, &fakeRecords{}, Options{Blend: paint.BlendPolicy{Enabled: true, Alpha: 2}})
	assert.Error(t, err)
}
