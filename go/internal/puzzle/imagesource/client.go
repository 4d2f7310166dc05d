package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxImageBytes bounds a single image download
const maxImageBytes = 32 << 20

// client fetches image bytes over HTTP
type client struct {
	http    *http.Client
	headers map[string]string
}

func newClient(timeout time.Duration) *client {
	return &client{
		http: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"Accept": "image/png, image/jpeg, image/gif, image/webp",
		},
	}
}

// open issues a GET and returns the body of a 2xx response. The caller closes it.
func (c *client) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("image host returned status code: %d", resp.StatusCode)
	}

	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxImageBytes), resp.Body}, nil
}
