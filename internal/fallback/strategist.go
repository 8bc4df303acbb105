// Package fallback walks a ranked list of upstream targets for a single
// logical call, retrying with backoff where the failure allows it and
// failing over where it does not.
//
// Every attempt is gated by the target's circuit breaker. A breaker that is
// open skips the target without consuming its retry budget: no call was
// attempted, so nothing was learned about the target.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/lorebind/chronicle/internal/breaker"
	"github.com/lorebind/chronicle/internal/upstream"
)

// ErrNoTargets is returned when the strategist has an empty target list.
var ErrNoTargets = errors.New("no upstream targets configured")

// Target is one ranked upstream alternative.
type Target struct {
	Client upstream.Client
	// MaxRetries bounds attempts against this target per logical call.
	MaxRetries int
}

// Config tunes the strategist.
type Config struct {
	Targets []Target

	// Breaker settings applied per target.
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
	Clock               breaker.Clock

	// BaseDelay is the backoff base for generic transient failures
	// (default 5s). RateLimitDelay is the base for rate-limit failures
	// (default 30s). Delay grows by 1.5x per attempt with ±20% jitter.
	BaseDelay      time.Duration
	RateLimitDelay time.Duration

	Logger *slog.Logger
}

// Strategist applies the retry/fallback policy across targets. One
// strategist instance serves one worker process; its breakers are
// process-local.
type Strategist struct {
	targets        []Target
	breakers       map[string]*breaker.Breaker
	baseDelay      time.Duration
	rateLimitDelay time.Duration
	logger         *slog.Logger
}

// New creates a strategist with one breaker per target.
func New(cfg Config) *Strategist {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breakers := make(map[string]*breaker.Breaker, len(cfg.Targets))
	for _, t := range cfg.Targets {
		breakers[t.Client.Name()] = breaker.New(breaker.Config{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerResetTimeout,
			Clock:            cfg.Clock,
		})
	}

	return &Strategist{
		targets:        cfg.Targets,
		breakers:       breakers,
		baseDelay:      cfg.BaseDelay,
		rateLimitDelay: cfg.RateLimitDelay,
		logger:         logger,
	}
}

// Analyze runs an extraction call through the fallback chain.
func (s *Strategist) Analyze(ctx context.Context, meta upstream.WorkMeta, units []upstream.UnitText, hint upstream.RangeHint) (*upstream.ExtractionResult, error) {
	var result *upstream.ExtractionResult
	err := s.execute(ctx, "analyze", func(ctx context.Context, c upstream.Client) error {
		r, err := c.Analyze(ctx, meta, units, hint)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Translate runs a translation call through the fallback chain.
func (s *Strategist) Translate(ctx context.Context, text string, tc upstream.TranslateContext) (string, error) {
	var out string
	err := s.execute(ctx, "translate", func(ctx context.Context, c upstream.Client) error {
		t, err := c.Translate(ctx, text, tc)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// execute walks the target list in rank order. Fatal errors abort the walk;
// target-specific errors and exhausted retry budgets move to the next
// target; an open breaker skips a target outright.
func (s *Strategist) execute(ctx context.Context, op string, attempt func(ctx context.Context, c upstream.Client) error) error {
	if len(s.targets) == 0 {
		return ErrNoTargets
	}

	var lastErr error
	for rank, t := range s.targets {
		name := t.Client.Name()
		br := s.breakers[name]

		if err := br.Check(); err != nil {
			s.logger.Debug("skipping target, circuit open", "op", op, "target", name, "rank", rank)
			lastErr = err
			continue
		}

		err := s.tryTarget(ctx, t, br, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if upstream.KindOf(err) == upstream.KindFatal {
			s.logger.Warn("fatal upstream error, aborting", "op", op, "target", name, "error", err)
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", op, ctx.Err())
		}
		s.logger.Warn("target exhausted, falling through", "op", op, "target", name, "rank", rank, "error", err)
	}

	return fmt.Errorf("all %d upstream targets exhausted for %s: %w", len(s.targets), op, lastErr)
}

// tryTarget retries one target for transient failures, abandoning it on
// fatal or target-specific ones.
func (s *Strategist) tryTarget(ctx context.Context, t Target, br *breaker.Breaker, attempt func(ctx context.Context, c upstream.Client) error) error {
	attempts := t.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	first := true
	return retry.Do(
		func() error {
			// The caller's Check admitted the first attempt and, in
			// half-open, claimed the single trial slot; re-checking here
			// would reject our own trial. Later attempts re-check because a
			// concurrent caller may have tripped the breaker in between.
			if first {
				first = false
			} else if err := br.Check(); err != nil {
				return retry.Unrecoverable(err)
			}

			err := attempt(ctx, t.Client)
			if err == nil {
				br.OnSuccess()
				return nil
			}

			br.OnFailure(upstream.IsSevere(err))

			switch upstream.KindOf(err) {
			case upstream.KindFatal, upstream.KindTargetUnavailable:
				return retry.Unrecoverable(err)
			default:
				return err
			}
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.DelayType(s.backoff),
		retry.LastErrorOnly(true),
	)
}

// backoff computes delay = base x 1.5^attempt with ±20% symmetric jitter.
// The jitter desynchronizes retry storms across concurrent callers.
func (s *Strategist) backoff(n uint, err error, _ *retry.Config) time.Duration {
	base := s.baseDelay
	if upstream.KindOf(err) == upstream.KindRateLimited {
		base = s.rateLimitDelay
	}
	d := float64(base) * math.Pow(1.5, float64(n))
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(d * jitter)
}

// BreakerState reports the breaker state for a target name. Used by status
// surfaces and tests.
func (s *Strategist) BreakerState(target string) (breaker.State, bool) {
	br, ok := s.breakers[target]
	if !ok {
		return breaker.Closed, false
	}
	return br.State(), true
}
