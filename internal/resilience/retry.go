// Package resilience retries transient failures of outbound calls: alert
// webhook deliveries and the initial Postgres connection.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Policy controls retries with exponential backoff and jitter.
type Policy struct {
	// Name identifies the operation in retry logs.
	Name string

	// Attempts is the total number of tries. 1 disables retrying.
	Attempts int

	// Backoff is the delay before the first retry. It grows by Multiplier
	// per attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	Multiplier float64

	// Jitter spreads each delay by up to ±Jitter of its value.
	Jitter float64

	// Retryable overrides IsTransient.
	Retryable func(err error) bool

	// Clock drives the backoff sleeps. Nil uses real time.
	Clock clockwork.Clock
}

// DefaultPolicy returns three attempts starting at 500ms.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:       name,
		Attempts:   3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error from fn is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	log := zap.L().With(zap.String("component", "resilience"), zap.String("operation", p.Name))

	var err error
	for attempt := range p.Attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts-1 {
			return err
		}

		delay := p.delay(attempt)
		log.Warn("retrying after transient failure",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return err
		case <-p.Clock.After(delay):
		}
	}
	return err
}

// delay returns the backoff before retry number attempt+1.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(p.Multiplier, float64(attempt))
	d = min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(max(d, 0))
}
