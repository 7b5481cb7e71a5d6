package upstream

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/policy/throttle"
)

// Config carries the per-session HTTP parameters.
type Config struct {
	// Source labels logs and metrics, e.g. "mapfeed" or "catalog".
	Source string
	// BaseURL seeds the API base. Leave empty to discover lazily through
	// the Discoverer on first use.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// GetAttempts and PostAttempts bound the retry loops per verb.
	GetAttempts  int
	PostAttempts int
	// LinearBackoff is the base pause for transient failures.
	LinearBackoff time.Duration
	// TokenCookie/TokenHeader describe the verification token the
	// upstream rotates: read from the named response cookie, replayed as
	// the named request header.
	TokenCookie string
	TokenHeader string
	// Headers are extra request headers (Origin, Referer and friends).
	Headers http.Header
}

// Session owns one worker's upstream HTTP state: a cookie-jarred client,
// the API base URL, and the rotating verification token. The base URL
// may be seeded from a discovery shared across workers; cookies and
// token are private to the session and survive only until the retry
// machinery discards it. A Session is not safe for concurrent use;
// every worker constructs its own.
type Session struct {
	cfg    Config
	gate   *throttle.Gate
	disc   *Discoverer
	logger *zap.Logger

	client *http.Client
	base   string
	token  string

	getPolicy  retryPolicy
	postPolicy retryPolicy
}

// NewSession builds a session. disc may be nil when cfg.BaseURL is set.
func NewSession(cfg Config, gate *throttle.Gate, disc *Discoverer, logger *zap.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:        cfg,
		gate:       gate,
		disc:       disc,
		logger:     logger,
		base:       cfg.BaseURL,
		getPolicy:  newRetryPolicy(cfg.GetAttempts, cfg.LinearBackoff),
		postPolicy: newRetryPolicy(cfg.PostAttempts, cfg.LinearBackoff),
	}
}

// BaseURL returns the API base, running discovery on first use when the
// session was not seeded with a shared one.
func (s *Session) BaseURL(ctx context.Context) (string, error) {
	if s.base != "" {
		return s.base, nil
	}
	if s.disc == nil {
		return "", fmt.Errorf("%w: no base url configured and no discoverer", ErrDiscovery)
	}
	base, err := s.disc.Discover(ctx)
	if err != nil {
		return "", err
	}
	s.base = base
	return base, nil
}

// httpClient lazily builds the cookie-jarred client.
func (s *Session) httpClient() *http.Client {
	if s.client == nil {
		jar, _ := cookiejar.New(nil)
		s.client = &http.Client{
			Jar:       jar,
			Timeout:   s.cfg.Timeout,
			Transport: newTransport(),
		}
	}
	return s.client
}

// reset drops cookies, connections and the verification token. The base
// URL is kept: rate limiting is tied to session state, not to the
// discovered path.
func (s *Session) reset() {
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	s.client = nil
	s.token = ""
}

// syncToken captures the rotating verification token from the cookie jar
// after a successful call so the next request can replay it as a header.
func (s *Session) syncToken(rawURL string) {
	if s.cfg.TokenCookie == "" || s.client == nil || s.client.Jar == nil {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == s.cfg.TokenCookie {
			s.token = c.Value
			return
		}
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
