package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrDiscovery marks a failed API base URL discovery. Callers decide the
// blast radius: a worker gives up its own task list, an orchestrator
// probing before any worker starts gives up the run.
var ErrDiscovery = errors.New("endpoint discovery failed")

// Discoverer resolves the version-qualified API base URL embedded in a
// public page. The upstream rotates the versioned path without notice,
// so it cannot be configured statically and must be re-read at runtime.
type Discoverer struct {
	homepage string
	pattern  *regexp.Regexp
	fetcher  PageFetcher
	renderer Renderer      // optional
	detector ShellDetector // optional, gates the render fallback
	logger   *zap.Logger
}

// NewDiscoverer compiles the extraction pattern and wires the fetch
// chain. renderer and detector may be nil to disable the render fallback.
func NewDiscoverer(homepage, pattern string, fetcher PageFetcher, renderer Renderer, detector ShellDetector, logger *zap.Logger) (*Discoverer, error) {
	if homepage == "" {
		return nil, fmt.Errorf("homepage url is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile api url pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("api url pattern needs a capture group")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		homepage: homepage,
		pattern:  re,
		fetcher:  fetcher,
		renderer: renderer,
		detector: detector,
		logger:   logger.Named("discovery"),
	}, nil
}

// Discover fetches the homepage and extracts the API base URL. There is
// no graceful degradation: without a base URL nothing upstream is
// reachable, so every failure is reported through ErrDiscovery.
func (d *Discoverer) Discover(ctx context.Context) (string, error) {
	page, err := d.fetcher.Fetch(ctx, d.homepage, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return "", fmt.Errorf("%w: fetch homepage: %v", ErrDiscovery, err)
	}
	if base, ok := d.extract(page.Body); ok {
		d.logger.Info("api base discovered", zap.String("base", base))
		return base, nil
	}

	if d.renderer != nil && (d.detector == nil || d.detector.NeedsRender(ctx, page)) {
		rendered, err := d.renderer.Render(ctx, d.homepage)
		if err != nil {
			d.logger.Warn("render fallback failed", zap.Error(err))
		} else if base, ok := d.extract(rendered.Body); ok {
			d.logger.Info("api base discovered after render", zap.String("base", base))
			return base, nil
		}
	}

	return "", fmt.Errorf("%w: pattern not matched on %s", ErrDiscovery, d.homepage)
}

// extract pulls the first capture group and undoes the JSON escaping the
// upstream applies to embedded URLs.
func (d *Discoverer) extract(body []byte) (string, bool) {
	m := d.pattern.FindSubmatch(body)
	if len(m) < 2 {
		return "", false
	}
	base := string(m[1])
	base = strings.ReplaceAll(base, `\u002F`, "/")
	base = strings.ReplaceAll(base, `\/`, "/")
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", false
	}
	return base, true
}
