// CLAUDE:SUMMARY HTTP collaborators: target descriptor fetch, reference image fetch+decode, board bitmap snapshot.
// Package remote talks to the canvas service and to wherever target
// descriptors and images are hosted.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/placebot/canvas"
	"github.com/hazyhaar/placebot/internal/fetch"
	"github.com/hazyhaar/placebot/target"
)

// Config locates the canvas service endpoints.
type Config struct {
	// BaseURL of the canvas service, e.g. "https://www.reddit.com".
	BaseURL string
	// LoginPath is joined with the URL-escaped username. Default: "/api/login/".
	LoginPath string
	// DrawPath receives placement requests. Default: "/api/place/draw.json".
	DrawPath string
	// BoardPath serves the packed board bitmap. Default: "/api/place/board-bitmap".
	BoardPath string
	// HeaderBytes are skipped at the start of the board bitmap. Default: 4.
	// Set to a negative value for none.
	HeaderBytes int
	// SessionCookie is the name of the session cookie. Default: "reddit_session".
	SessionCookie string
}

func (c *Config) defaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://www.reddit.com"
	}
	if c.LoginPath == "" {
		c.LoginPath = "/api/login/"
	}
	if c.DrawPath == "" {
		c.DrawPath = "/api/place/draw.json"
	}
	if c.BoardPath == "" {
		c.BoardPath = "/api/place/board-bitmap"
	}
	if c.HeaderBytes == 0 {
		c.HeaderBytes = 4
	}
	if c.HeaderBytes < 0 {
		c.HeaderBytes = 0
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "reddit_session"
	}
}

// Client implements target.DescriptorFetcher, target.ImageFetcher and
// traversal.CanvasSource over HTTP.
type Client struct {
	fetcher *fetch.Fetcher
	config  Config
	logger  *slog.Logger
}

// NewClient creates a Client. A nil logger uses slog.Default().
func NewClient(cfg Config, fetcher *fetch.Fetcher, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{fetcher: fetcher, config: cfg, logger: logger}
}

// FetchDescriptor downloads and parses the target descriptor at ref.
func (c *Client) FetchDescriptor(ctx context.Context, ref string) (*target.Descriptor, error) {
	res, err := c.fetcher.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: descriptor: %w", target.ErrTransport, err)
	}
	return target.ParseDescriptor(res.Body)
}

// FetchImage downloads and decodes the reference image at ref. PNG, GIF,
// JPEG, BMP, TIFF and WebP are accepted.
func (c *Client) FetchImage(ctx context.Context, ref string) (image.Image, error) {
	res, err := c.fetcher.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: image: %w", target.ErrTransport, err)
	}
	img, format, err := image.Decode(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %w", target.ErrFormat, err)
	}
	c.logger.Debug("remote: image decoded", "ref", ref, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

// FetchCanvas downloads the board bitmap and loads it into dst.
func (c *Client) FetchCanvas(ctx context.Context, dst *canvas.Canvas) error {
	res, err := c.fetcher.Get(ctx, c.config.BaseURL+c.config.BoardPath)
	if err != nil {
		return fmt.Errorf("%w: board: %w", target.ErrTransport, err)
	}
	body := res.Body
	if len(body) < c.config.HeaderBytes {
		return fmt.Errorf("%w: board: %w", target.ErrTransport, canvas.ErrShortSnapshot)
	}
	if err := dst.Load(bytes.NewReader(body[c.config.HeaderBytes:])); err != nil {
		if errors.Is(err, canvas.ErrShortSnapshot) {
			return fmt.Errorf("%w: board: %w (%d bytes)", target.ErrTransport, err, len(body))
		}
		return fmt.Errorf("%w: board: %w", target.ErrTransport, err)
	}
	return nil
}
