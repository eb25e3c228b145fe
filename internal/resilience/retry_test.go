package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

var errFlaky = NewTransientError(errors.New("flaky"), 503)

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(4), func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	perm := errors.New("bad request")
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	calls := 0
	cfg.OnRetry = func(int, error) { cancel() }

	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ShouldRetryOverride(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }
	calls := 0
	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_OnRetryAttempts(t *testing.T) {
	cfg := fastRetry(3)
	var attempts []int
	cfg.OnRetry = func(a int, _ error) { attempts = append(attempts, a) }
	_ = Do(context.Background(), cfg, func(context.Context) error { return errFlaky })
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestDoVal(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}

	n, err := DoVal(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		return 42, errFlaky
	})
	if err == nil || n != 0 {
		t.Errorf("expected zero value and error, got %d, %v", n, err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := backoff(i, cfg); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i, got, w)
		}
	}

	cfg.JitterFraction = 0.5
	for range 50 {
		d := backoff(0, cfg)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered backoff %v out of range", d)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	def := DefaultRetryConfig()
	if cfg.MaxAttempts != def.MaxAttempts || cfg.InitialBackoff != def.InitialBackoff ||
		cfg.MaxBackoff != def.MaxBackoff || cfg.Multiplier != def.Multiplier {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.JitterFraction != 0 {
		t.Errorf("JitterFraction = %v, want 0", cfg.JitterFraction)
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 250, 4000)
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 250*time.Millisecond || cfg.MaxBackoff != 4*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if got := FromRetryConfig(0, 0, 0); got.MaxAttempts != DefaultRetryConfig().MaxAttempts {
		t.Errorf("zero values should keep defaults, got %+v", got)
	}
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("opendata", "search")
	fn(1, errors.New("x"))
}
