package upstream

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"time"
)

// failureClass buckets one failed call attempt. Every class has exactly
// one row in the transition table (retryPolicy.next), which makes each
// retry decision auditable and testable on its own.
type failureClass int

const (
	classOK failureClass = iota
	// classNoData is a 404: the upstream has nothing for this query.
	// Short-circuits the retry loop, not an error.
	classNoData
	// classRateLimited is a 429 or 503. The upstream ties rate limiting
	// to session state, so the session is discarded before retrying.
	classRateLimited
	// classAuthExpired is a 400 on endpoints that reject stale
	// verification tokens. Discard the session and pause briefly; no
	// backoff growth, since the issue is token expiry, not load.
	classAuthExpired
	// classTransient covers transport failures and any other status.
	classTransient
)

func (c failureClass) String() string {
	switch c {
	case classOK:
		return "ok"
	case classNoData:
		return "no_data"
	case classRateLimited:
		return "rate_limited"
	case classAuthExpired:
		return "auth_expired"
	default:
		return "transient"
	}
}

// classify maps a transport error or HTTP status onto a failure class.
func classify(status int, err error) failureClass {
	if err != nil {
		return classTransient
	}
	switch status {
	case http.StatusOK:
		return classOK
	case http.StatusNotFound:
		return classNoData
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return classRateLimited
	case http.StatusBadRequest:
		return classAuthExpired
	default:
		return classTransient
	}
}

// retryPolicy holds the attempt budget and per-class backoff parameters.
type retryPolicy struct {
	maxAttempts int
	linearBase  time.Duration // transient: linearBase * attempt
	rateBase    time.Duration // rate limited: rateBase * attempt + jitter
	rateJitter  time.Duration // upper bound of the random extra on rate limits
	authDelay   time.Duration // fixed pause after an auth-expired discard
}

func newRetryPolicy(maxAttempts int, linearBase time.Duration) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if linearBase <= 0 {
		linearBase = 5 * time.Second
	}
	return retryPolicy{
		maxAttempts: maxAttempts,
		linearBase:  linearBase,
		rateBase:    8 * time.Second,
		rateJitter:  5 * time.Second,
		authDelay:   2 * time.Second,
	}
}

// retryStep is one row of the transition table: whether to try again,
// whether the session must be rebuilt first, and how long to pause.
type retryStep struct {
	retry          bool
	discardSession bool
	delay          time.Duration
}

// next returns the transition for a failure of the given class on the
// given 1-based attempt. Once the budget is spent every class maps to
// the terminal step.
func (p retryPolicy) next(c failureClass, attempt int) retryStep {
	if attempt >= p.maxAttempts {
		return retryStep{}
	}
	switch c {
	case classRateLimited:
		return retryStep{
			retry:          true,
			discardSession: true,
			delay:          time.Duration(attempt)*p.rateBase + randomJitter(p.rateJitter),
		}
	case classAuthExpired:
		return retryStep{retry: true, discardSession: true, delay: p.authDelay}
	case classTransient:
		return retryStep{retry: true, delay: time.Duration(attempt) * p.linearBase}
	default:
		return retryStep{}
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
