package segmentation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthonynsimon/bild/clone"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// HTTPPredictor talks to a point-prompted segmentation inference server
// (for example a Segment Anything sidecar).
//
//	GET  {endpoint}/healthz     -> {"status":"ok","checkpoint":"...","loaded":true}
//	POST {endpoint}/embeddings  <- {"image":"<base64 png>","imageFormat":"RGB"} -> {"imageId":"..."}
//	POST {endpoint}/predict     <- {"imageId","point":[x,y],"label","multimask"}
//	                            -> {"width","height","masks":[{"score","counts":[...]}]}
//
// Mask counts are row-major run lengths starting with an uncovered run.
// Pixels are sent in the channel order the server expects, named in imageFormat.
type HTTPPredictor struct {
	endpoint   string
	checkpoint string
	client     *http.Client
	order      paint.ChannelOrder

	imageID string
	bounds  image.Rectangle
}

type healthResponse struct {
	Status     string `json:"status"`
	Checkpoint string `json:"checkpoint"`
	Loaded     bool   `json:"loaded"`
}

type embeddingRequest struct {
	Image       string `json:"image"`
	ImageFormat string `json:"imageFormat"`
	Checkpoint  string `json:"checkpoint,omitempty"`
}

type embeddingResponse struct {
	ImageID string `json:"imageId"`
}

type predictRequest struct {
	ImageID   string `json:"imageId"`
	Point     [2]int `json:"point"`
	Label     int    `json:"label"`
	Multimask bool   `json:"multimask"`
}

type predictedMask struct {
	Score  float64 `json:"score"`
	Counts []int   `json:"counts"`
}

type predictResponse struct {
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Masks  []predictedMask `json:"masks"`
}

// NewHTTPPredictor creates a predictor for the given endpoint. A nil client
// falls back to http.DefaultClient; request deadlines come from the context.
func NewHTTPPredictor(endpoint, checkpoint string, client *http.Client) (*HTTPPredictor, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("segmentation endpoint must not be empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPredictor{
		endpoint:   endpoint,
		checkpoint: checkpoint,
		client:     client,
		order:      paint.RGB,
	}, nil
}

// SetChannelOrder selects the channel order of the pixels sent to the server.
func (p *HTTPPredictor) SetChannelOrder(order paint.ChannelOrder) {
	p.order = order
}

// Check verifies that the server is up and has the configured checkpoint loaded.
func (p *HTTPPredictor) Check(ctx context.Context) error {
	var health healthResponse
	if err := p.do(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return err
	}
	if !health.Loaded {
		return fmt.Errorf("segmentation server at %s has no model loaded (status %q)", p.endpoint, health.Status)
	}
	if p.checkpoint != "" && health.Checkpoint != p.checkpoint {
		return fmt.Errorf("segmentation server at %s serves checkpoint %q, expected %q", p.endpoint, health.Checkpoint, p.checkpoint)
	}
	return nil
}

func (p *HTTPPredictor) SetImage(ctx context.Context, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, reorderChannels(img, p.order)); err != nil {
		return fmt.Errorf("failed to encode image for segmentation: %w", err)
	}

	req := embeddingRequest{
		Image:       base64.StdEncoding.EncodeToString(buf.Bytes()),
		ImageFormat: string(p.order),
		Checkpoint:  p.checkpoint,
	}
	var resp embeddingResponse
	if err := p.do(ctx, http.MethodPost, "/embeddings", req, &resp); err != nil {
		return err
	}
	if resp.ImageID == "" {
		return fmt.Errorf("segmentation server returned an empty image id")
	}

	p.imageID = resp.ImageID
	p.bounds = img.Bounds()
	slog.Debug("segmentation: image embedded", "image_id", p.imageID, "width", p.bounds.Dx(), "height", p.bounds.Dy())
	return nil
}

func (p *HTTPPredictor) Predict(ctx context.Context, pt image.Point, label int, multimask bool) ([]paint.Candidate, error) {
	if p.imageID == "" {
		return nil, fmt.Errorf("predict called before an image was set")
	}

	// The server works in image-relative coordinates.
	rel := pt.Sub(p.bounds.Min)
	req := predictRequest{
		ImageID:   p.imageID,
		Point:     [2]int{rel.X, rel.Y},
		Label:     label,
		Multimask: multimask,
	}
	var resp predictResponse
	if err := p.do(ctx, http.MethodPost, "/predict", req, &resp); err != nil {
		return nil, err
	}
	if resp.Width != p.bounds.Dx() || resp.Height != p.bounds.Dy() {
		return nil, fmt.Errorf("segmentation server returned masks of %dx%d for a %dx%d image",
			resp.Width, resp.Height, p.bounds.Dx(), p.bounds.Dy())
	}

	candidates := make([]paint.Candidate, 0, len(resp.Masks))
	for i, m := range resp.Masks {
		mask, err := decodeRLE(m.Counts, resp.Width, resp.Height)
		if err != nil {
			return nil, fmt.Errorf("invalid mask %d: %w", i, err)
		}
		candidates = append(candidates, paint.Candidate{Mask: mask, Score: m.Score})
	}
	slog.Debug("segmentation: masks predicted", "image_id", p.imageID, "mask_count", len(candidates))
	return candidates, nil
}

func (p *HTTPPredictor) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("segmentation request %s failed: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("segmentation request %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// reorderChannels returns img with its colour channels in order. The input is
// never modified.
func reorderChannels(img image.Image, order paint.ChannelOrder) image.Image {
	if order == paint.RGB {
		return img
	}
	rgba := clone.AsRGBA(img)
	for i := 0; i+3 < len(rgba.Pix); i += 4 {
		c := paint.Color{R: rgba.Pix[i], G: rgba.Pix[i+1], B: rgba.Pix[i+2]}
		first, second, third := c.DisplayOrder(order)
		rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2] = uint8(first), uint8(second), uint8(third)
	}
	return rgba
}
