package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return errors.New("authentication failed")
	})
	if err == nil {
		t.Fatal("Do() should fail")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return errors.New("i/o timeout")
	})
	if err == nil {
		t.Fatal("Do() should fail")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DoWithResult(ctx, fastConfig(3), func() (int, error) {
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DoWithResult() error = %v, want context.Canceled", err)
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig(0, 0, 0, 0)
	def := DefaultConfig()
	if cfg.MaxAttempts != def.MaxAttempts || cfg.InitialDelay != def.InitialDelay || cfg.Multiplier != def.Multiplier {
		t.Errorf("NewConfig(0...) = %+v, want defaults", cfg)
	}

	cfg = NewConfig(7, time.Second, 0, 3)
	if cfg.MaxAttempts != 7 || cfg.InitialDelay != time.Second || cfg.Multiplier != 3 {
		t.Errorf("NewConfig() = %+v", cfg)
	}
}
