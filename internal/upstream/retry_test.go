package upstream

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		err    error
		want   failureClass
	}{
		{name: "ok", status: http.StatusOK, want: classOK},
		{name: "not found", status: http.StatusNotFound, want: classNoData},
		{name: "too many requests", status: http.StatusTooManyRequests, want: classRateLimited},
		{name: "service unavailable", status: http.StatusServiceUnavailable, want: classRateLimited},
		{name: "bad request", status: http.StatusBadRequest, want: classAuthExpired},
		{name: "server error", status: http.StatusInternalServerError, want: classTransient},
		{name: "redirect", status: http.StatusFound, want: classTransient},
		{name: "transport error", err: errors.New("dial tcp: connection refused"), want: classTransient},
		{name: "transport error outranks status", status: http.StatusOK, err: errors.New("read: reset"), want: classTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classify(tt.status, tt.err); got != tt.want {
				t.Fatalf("classify(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
			}
		})
	}
}

func TestPolicyNext(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(4, 2*time.Second)

	t.Run("transient backs off linearly", func(t *testing.T) {
		t.Parallel()
		for attempt := 1; attempt < p.maxAttempts; attempt++ {
			step := p.next(classTransient, attempt)
			if !step.retry || step.discardSession {
				t.Fatalf("attempt %d: step = %+v, want retry without discard", attempt, step)
			}
			if want := time.Duration(attempt) * 2 * time.Second; step.delay != want {
				t.Fatalf("attempt %d: delay = %v, want %v", attempt, step.delay, want)
			}
		}
	})

	t.Run("rate limited grows and discards", func(t *testing.T) {
		t.Parallel()
		for attempt := 1; attempt < p.maxAttempts; attempt++ {
			step := p.next(classRateLimited, attempt)
			if !step.retry || !step.discardSession {
				t.Fatalf("attempt %d: step = %+v, want retry with discard", attempt, step)
			}
			lo := time.Duration(attempt) * p.rateBase
			hi := lo + p.rateJitter
			if step.delay < lo || step.delay > hi {
				t.Fatalf("attempt %d: delay = %v, want within [%v, %v]", attempt, step.delay, lo, hi)
			}
		}
	})

	t.Run("auth expired pauses briefly and discards", func(t *testing.T) {
		t.Parallel()
		step := p.next(classAuthExpired, 1)
		if !step.retry || !step.discardSession || step.delay != p.authDelay {
			t.Fatalf("step = %+v, want retry with discard after %v", step, p.authDelay)
		}
	})

	t.Run("spent budget is terminal for every class", func(t *testing.T) {
		t.Parallel()
		for _, c := range []failureClass{classRateLimited, classAuthExpired, classTransient} {
			if step := p.next(c, p.maxAttempts); step.retry {
				t.Fatalf("class %v: still retrying on final attempt", c)
			}
		}
	})
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(0, 0)
	if p.maxAttempts != 3 {
		t.Fatalf("maxAttempts = %d, want 3", p.maxAttempts)
	}
	if p.linearBase != 5*time.Second {
		t.Fatalf("linearBase = %v, want 5s", p.linearBase)
	}
}

func TestRandomJitter(t *testing.T) {
	t.Parallel()

	if got := randomJitter(0); got != 0 {
		t.Fatalf("randomJitter(0) = %v, want 0", got)
	}
	limit := 500 * time.Millisecond
	for i := 0; i < 50; i++ {
		if got := randomJitter(limit); got < 0 || got >= limit {
			t.Fatalf("randomJitter(%v) = %v, want within [0, %v)", limit, got, limit)
		}
	}
}
