package upstream

import (
	"context"
	"net/http"
	"time"
)

// Page is a fetched document plus transport metadata.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// PageFetcher retrieves a page over plain HTTP without executing scripts.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, headers http.Header) (Page, error)
}

// Renderer retrieves a page through a browser engine, running its
// scripts, for pages whose content only exists after rendering.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// ShellDetector decides whether a plain fetch produced only a script
// shell, meaning a render pass could still surface the content.
type ShellDetector interface {
	NeedsRender(ctx context.Context, page Page) bool
}
