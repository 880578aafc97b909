// Package imageprep normalizes product fixture images into the raster
// assets the CAD activity expects: bounded dimensions, PNG encoded.
package imageprep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	// Register decoders for the formats product photos arrive in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"fossapp/internal/generate"
)

const (
	defaultMaxEdge = 512
	defaultTimeout = 30 * time.Second
	maxImageBytes  = 16 << 20
)

// Options configures the processor.
type Options struct {
	MaxEdge    int
	HTTPClient *http.Client
}

// Processor fetches and downscales fixture images.
type Processor struct {
	maxEdge int
	client  *http.Client
}

func NewProcessor(opts Options) *Processor {
	maxEdge := opts.MaxEdge
	if maxEdge <= 0 {
		maxEdge = defaultMaxEdge
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Processor{maxEdge: maxEdge, client: client}
}

// Prepare implements generate.ImagePreparer. Each reference is fetched (or
// taken inline), decoded, fitted into the max edge box and re-encoded as
// PNG. One bad image fails the batch; a tile with a missing product photo
// is not worth drawing.
func (p *Processor) Prepare(ctx context.Context, refs []generate.ImageRef) ([]generate.Asset, error) {
	assets := make([]generate.Asset, 0, len(refs))
	for _, ref := range refs {
		data := ref.Data
		if len(data) == 0 {
			fetched, err := p.fetch(ctx, ref.URL)
			if err != nil {
				return nil, fmt.Errorf("imageprep: fetch %q: %w", ref.Name, err)
			}
			data = fetched
		}
		normalized, err := p.normalize(data)
		if err != nil {
			return nil, fmt.Errorf("imageprep: process %q: %w", ref.Name, err)
		}
		assets = append(assets, generate.Asset{
			Name: ref.Name,
			MIME: "image/png",
			Data: normalized,
		})
	}
	return assets, nil
}

func (p *Processor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("empty image url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func (p *Processor) normalize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > p.maxEdge || bounds.Dy() > p.maxEdge {
		img = imaging.Fit(img, p.maxEdge, p.maxEdge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
