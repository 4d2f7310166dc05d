package imagesource

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func catalogFor(t *testing.T, baseURL string) *Catalog {
	t.Helper()
	c, err := ParseCatalog(strings.NewReader(`
puzzles:
  - id: lighthouse
    title: Lighthouse
    image_url: ` + baseURL + `/lighthouse.png
  - id: meadow
    title: Meadow
    width: 1600
    height: 900
  - id: broken
    title: Broken
    image_url: ` + baseURL + `/broken.png
  - id: gone
    title: Gone
    image_url: ` + baseURL + `/missing.png
`))
	require.NoError(t, err)
	return c
}

func TestCatalogResolver(t *testing.T) {
	var hits atomic.Int32
	img := pngBytes(t, 640, 480)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/lighthouse.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(img)
		case "/broken.png":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewCatalogResolver(catalogFor(t, srv.URL), time.Second)
	ctx := context.Background()

	t.Run("decodes the image header", func(t *testing.T) {
		dims, err := r.Resolve(ctx, "lighthouse")
		require.NoError(t, err)
		assert.Equal(t, placement.ImageDimensions{Width: 640, Height: 480}, dims)

		before := hits.Load()
		_, err = r.Resolve(ctx, "lighthouse")
		require.NoError(t, err)
		assert.Equal(t, before, hits.Load(), "second resolve should be cached")
	})

	t.Run("explicit dimensions skip the fetch", func(t *testing.T) {
		before := hits.Load()
		dims, err := r.Resolve(ctx, "meadow")
		require.NoError(t, err)
		assert.Equal(t, placement.ImageDimensions{Width: 1600, Height: 900}, dims)
		assert.Equal(t, before, hits.Load())
	})

	for _, id := range []string{"broken", "gone", "unknown"} {
		t.Run("load error for "+id, func(t *testing.T) {
			_, err := r.Resolve(ctx, id)
			var loadErr *ImageLoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, id, loadErr.PuzzleID)
		})
	}

	_, err := r.Resolve(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnknownPuzzle)
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing id":    "puzzles:\n  - title: x\n    image_url: http://x/y.png\n",
		"no source":     "puzzles:\n  - id: a\n",
		"duplicate ids": "puzzles:\n  - id: a\n    width: 1\n    height: 1\n  - id: a\n    width: 1\n    height: 1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
