package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/metrics"
)

// ErrNoData marks a request the upstream answered 404 for: there is
// nothing to fetch for that resource. Callers skip it, they do not retry.
var ErrNoData = errors.New("no upstream data")

// ErrExhausted marks a request abandoned after its attempt budget.
var ErrExhausted = errors.New("attempt budget exhausted")

const maxBodyBytes = 16 << 20

// Get fetches path with the given query and returns the raw response
// body. path is joined to the session base unless it is already an
// absolute URL.
func (s *Session) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return s.do(ctx, http.MethodGet, path, query, nil, s.getPolicy)
}

// GetJSON is Get plus a JSON decode into out.
func (s *Session) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	raw, err := s.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return decodeJSON(raw, out)
}

// Post sends payload as a JSON body and returns the raw response body.
func (s *Session) Post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return s.do(ctx, http.MethodPost, path, nil, body, s.postPolicy)
}

// PostJSON is Post plus a JSON decode into out.
func (s *Session) PostJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := s.Post(ctx, path, payload)
	if err != nil {
		return err
	}
	return decodeJSON(raw, out)
}

// do runs one request through the retry machinery. Every attempt passes
// the shared throttle first. Outcomes map to classes; the policy decides
// whether the class retries, how long it sleeps, and whether the session
// state is discarded before the next attempt.
func (s *Session) do(ctx context.Context, method, path string, query url.Values, body []byte, policy retryPolicy) ([]byte, error) {
	full, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		if s.gate != nil {
			if err := s.gate.Wait(ctx); err != nil {
				return nil, err
			}
		}

		status, raw, err := s.roundTrip(ctx, method, full, query, body)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class := classify(status, err)
		metrics.ObserveUpstreamRequest(s.cfg.Source, method, class.String())

		switch class {
		case classOK:
			s.syncToken(full)
			return raw, nil
		case classNoData:
			return nil, fmt.Errorf("%s %s: %w", method, full, ErrNoData)
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("unexpected status %d", status)
		}

		step := policy.next(class, attempt)
		if step.discardSession {
			s.reset()
		}
		if !step.retry {
			break
		}

		s.logger.Warn("upstream request failed, retrying",
			zap.String("method", method),
			zap.String("url", full),
			zap.Int("attempt", attempt),
			zap.String("class", class.String()),
			zap.Duration("delay", step.delay),
			zap.Error(lastErr),
		)
		metrics.ObserveRetryDelay(class.String(), step.delay)
		if err := sleepCtx(ctx, step.delay); err != nil {
			return nil, err
		}
	}

	s.logger.Error("upstream request abandoned",
		zap.String("method", method),
		zap.String("url", full),
		zap.Int("attempts", policy.maxAttempts),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w: %v", method, full, policy.maxAttempts, ErrExhausted, lastErr)
}

// resolve joins path to the session base, discovering the base first
// when needed. Absolute URLs pass through untouched.
func (s *Session) resolve(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	base, err := s.BaseURL(ctx)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}

func (s *Session) roundTrip(ctx context.Context, method, full string, query url.Values, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	s.applyHeaders(req, body != nil)

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, full, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (s *Session) applyHeaders(req *http.Request, hasBody bool) {
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, values := range s.cfg.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if s.cfg.TokenHeader != "" && s.token != "" {
		req.Header.Set(s.cfg.TokenHeader, s.token)
	}
}

func decodeJSON(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
