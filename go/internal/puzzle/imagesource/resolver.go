package imagesource

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
)

// Resolver turns a puzzle id into the pixel size of its source image
type Resolver interface {
	Resolve(ctx context.Context, puzzleID string) (placement.ImageDimensions, error)
}

// CatalogResolver resolves catalog entries, fetching and decoding the image
// header when the entry does not pin its dimensions. Results are cached.
type CatalogResolver struct {
	catalog *Catalog
	client  *client

	mu    sync.Mutex
	cache map[string]placement.ImageDimensions
}

// NewCatalogResolver creates a resolver over a catalog
func NewCatalogResolver(catalog *Catalog, timeout time.Duration) *CatalogResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CatalogResolver{
		catalog: catalog,
		client:  newClient(timeout),
		cache:   make(map[string]placement.ImageDimensions),
	}
}

var _ Resolver = (*CatalogResolver)(nil)

func (r *CatalogResolver) Resolve(ctx context.Context, puzzleID string) (placement.ImageDimensions, error) {
	p, ok := r.catalog.Lookup(puzzleID)
	if !ok {
		return placement.ImageDimensions{}, &ImageLoadError{PuzzleID: puzzleID, Err: ErrUnknownPuzzle}
	}
	if p.Width > 0 && p.Height > 0 {
		return placement.ImageDimensions{Width: p.Width, Height: p.Height}, nil
	}

	r.mu.Lock()
	dims, cached := r.cache[puzzleID]
	r.mu.Unlock()
	if cached {
		return dims, nil
	}

	dims, err := r.fetch(ctx, p.ImageURL)
	if err != nil {
		log.Warn().Err(err).Str("puzzle_id", puzzleID).Str("url", p.ImageURL).Msg("failed to resolve image")
		return placement.ImageDimensions{}, &ImageLoadError{PuzzleID: puzzleID, URL: p.ImageURL, Err: err}
	}

	r.mu.Lock()
	r.cache[puzzleID] = dims
	r.mu.Unlock()

	log.Debug().
		Str("puzzle_id", puzzleID).
		Int("width", dims.Width).
		Int("height", dims.Height).
		Msg("image resolved")

	return dims, nil
}

func (r *CatalogResolver) fetch(ctx context.Context, url string) (placement.ImageDimensions, error) {
	body, err := r.client.open(ctx, url)
	if err != nil {
		return placement.ImageDimensions{}, err
	}
	defer body.Close()

	cfg, format, err := image.DecodeConfig(body)
	if err != nil {
		return placement.ImageDimensions{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return placement.ImageDimensions{}, fmt.Errorf("%s image has empty dimensions", format)
	}
	return placement.ImageDimensions{Width: cfg.Width, Height: cfg.Height}, nil
}
