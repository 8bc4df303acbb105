package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lorebind/chronicle/internal/breaker"
	"github.com/lorebind/chronicle/internal/upstream"
)

var errBoom = errors.New("boom")

// testStrategist builds a strategist with microsecond backoff so retries
// don't slow the suite down.
func testStrategist(targets ...Target) *Strategist {
	return New(Config{
		Targets:             targets,
		BreakerThreshold:    3,
		BreakerResetTimeout: time.Minute,
		BaseDelay:           time.Microsecond,
		RateLimitDelay:      time.Microsecond,
	})
}

func TestStrategist_TransientRetriesSameTarget(t *testing.T) {
	mock := &upstream.MockClient{
		TargetName: "primary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			if call < 2 {
				return "", upstream.Transient("primary", errBoom)
			}
			return "ok", nil
		},
	}
	s := testStrategist(Target{Client: mock, MaxRetries: 3})

	out, err := s.Translate(context.Background(), "text", upstream.TranslateContext{})
	if err != nil {
		t.Fatalf("Translate error = %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q, want ok", out)
	}
	if mock.TranslateCalls() != 3 {
		t.Errorf("calls = %d, want 3 (two transient failures then success)", mock.TranslateCalls())
	}
}

func TestStrategist_FatalAbortsImmediately(t *testing.T) {
	primary := &upstream.MockClient{
		TargetName: "primary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			return "", upstream.Fatal("primary", errBoom)
		},
	}
	secondary := &upstream.MockClient{TargetName: "secondary"}
	s := testStrategist(
		Target{Client: primary, MaxRetries: 3},
		Target{Client: secondary, MaxRetries: 3},
	)

	_, err := s.Translate(context.Background(), "text", upstream.TranslateContext{})
	if upstream.KindOf(err) != upstream.KindFatal {
		t.Fatalf("error kind = %s, want fatal", upstream.KindOf(err))
	}
	if primary.TranslateCalls() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.TranslateCalls())
	}
	if secondary.TranslateCalls() != 0 {
		t.Errorf("secondary calls = %d, want 0 (fatal must not fail over)", secondary.TranslateCalls())
	}
}

func TestStrategist_TargetUnavailableFailsOver(t *testing.T) {
	primary := &upstream.MockClient{
		TargetName: "primary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			return "", upstream.TargetUnavailable("primary", false, errBoom)
		},
	}
	secondary := &upstream.MockClient{
		TargetName: "secondary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			return "fallback result", nil
		},
	}
	s := testStrategist(
		Target{Client: primary, MaxRetries: 5},
		Target{Client: secondary, MaxRetries: 5},
	)

	out, err := s.Translate(context.Background(), "text", upstream.TranslateContext{})
	if err != nil {
		t.Fatalf("Translate error = %v", err)
	}
	if out != "fallback result" {
		t.Errorf("out = %q", out)
	}
	if primary.TranslateCalls() != 1 {
		t.Errorf("primary calls = %d, want 1 (target-specific errors skip remaining retries)", primary.TranslateCalls())
	}
}

func TestStrategist_SevereFailureTripsBreaker(t *testing.T) {
	primary := &upstream.MockClient{
		TargetName: "primary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			return "", upstream.TargetUnavailable("primary", true, errBoom)
		},
	}
	secondary := &upstream.MockClient{TargetName: "secondary"}
	s := testStrategist(
		Target{Client: primary, MaxRetries: 5},
		Target{Client: secondary, MaxRetries: 5},
	)

	if _, err := s.Translate(context.Background(), "text", upstream.TranslateContext{}); err != nil {
		t.Fatalf("Translate error = %v", err)
	}
	state, ok := s.BreakerState("primary")
	if !ok || state != breaker.Open {
		t.Errorf("primary breaker state = %v, want open after one severe failure", state)
	}

	// The next call should skip primary without attempting it.
	before := primary.TranslateCalls()
	if _, err := s.Translate(context.Background(), "text", upstream.TranslateContext{}); err != nil {
		t.Fatalf("second Translate error = %v", err)
	}
	if primary.TranslateCalls() != before {
		t.Errorf("primary was called while its circuit was open")
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestStrategist_HalfOpenTrialRecoversTarget(t *testing.T) {
	primary := &upstream.MockClient{
		TargetName: "primary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			if call == 0 {
				return "", upstream.TargetUnavailable("primary", true, errBoom)
			}
			return "primary back", nil
		},
	}
	secondary := &upstream.MockClient{
		TargetName: "secondary",
		TranslateFunc: func(call int, text string, tc upstream.TranslateContext) (string, error) {
			return "secondary result", nil
		},
	}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(Config{
		Targets: []Target{
			{Client: primary, MaxRetries: 3},
			{Client: secondary, MaxRetries: 3},
		},
		BreakerThreshold:    3,
		BreakerResetTimeout: time.Minute,
		Clock:               clock,
		BaseDelay:           time.Microsecond,
		RateLimitDelay:      time.Microsecond,
	})

	out, err := s.Translate(context.Background(), "text", upstream.TranslateContext{})
	if err != nil {
		t.Fatalf("Translate error = %v", err)
	}
	if out != "secondary result" {
		t.Fatalf("out = %q, want failover result", out)
	}
	if state, _ := s.BreakerState("primary"); state != breaker.Open {
		t.Fatalf("primary breaker state = %v, want open", state)
	}

	// After the reset timeout the breaker admits one trial call, which
	// succeeds and closes the circuit.
	clock.now = clock.now.Add(2 * time.Minute)
	out, err = s.Translate(context.Background(), "text", upstream.TranslateContext{})
	if err != nil {
		t.Fatalf("Translate after reset error = %v", err)
	}
	if out != "primary back" {
		t.Errorf("out = %q, want the recovered primary's result", out)
	}
	if primary.TranslateCalls() != 2 {
		t.Errorf("primary calls = %d, want 2 (one severe failure, one trial)", primary.TranslateCalls())
	}
	if state, _ := s.BreakerState("primary"); state != breaker.Closed {
		t.Errorf("primary breaker state = %v, want closed after trial success", state)
	}
}

func TestStrategist_AllTargetsExhausted(t *testing.T) {
	fail := func(call int, text string, tc upstream.TranslateContext) (string, error) {
		return "", upstream.Transient("", errBoom)
	}
	a := &upstream.MockClient{TargetName: "a", TranslateFunc: fail}
	b := &upstream.MockClient{TargetName: "b", TranslateFunc: fail}
	s := testStrategist(Target{Client: a, MaxRetries: 2}, Target{Client: b, MaxRetries: 2})

	_, err := s.Translate(context.Background(), "text", upstream.TranslateContext{})
	if err == nil {
		t.Fatal("Translate succeeded, want aggregate failure")
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("aggregate error does not carry the last observed error: %v", err)
	}
	if a.TranslateCalls() != 2 || b.TranslateCalls() != 2 {
		t.Errorf("calls = %d/%d, want 2/2", a.TranslateCalls(), b.TranslateCalls())
	}
}

func TestStrategist_NoTargets(t *testing.T) {
	s := testStrategist()
	if _, err := s.Translate(context.Background(), "x", upstream.TranslateContext{}); !errors.Is(err, ErrNoTargets) {
		t.Errorf("error = %v, want ErrNoTargets", err)
	}
}

func TestStrategist_AnalyzePassesThrough(t *testing.T) {
	want := &upstream.ExtractionResult{
		Characters: []upstream.ExtractedCharacter{{Name: "Wei Lan"}},
	}
	mock := &upstream.MockClient{
		TargetName: "primary",
		AnalyzeFunc: func(call int, meta upstream.WorkMeta, units []upstream.UnitText, hint upstream.RangeHint) (*upstream.ExtractionResult, error) {
			return want, nil
		},
	}
	s := testStrategist(Target{Client: mock, MaxRetries: 1})

	got, err := s.Analyze(context.Background(), upstream.WorkMeta{}, []upstream.UnitText{{UnitID: "u1"}}, upstream.RangeHint{})
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if len(got.Characters) != 1 || got.Characters[0].Name != "Wei Lan" {
		t.Errorf("result = %+v", got)
	}
}
