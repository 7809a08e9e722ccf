package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func TestDelay(t *testing.T) {
	p := Policy{Backoff: time.Second, MaxBackoff: 10 * time.Second}
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.expected {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestDelayNonDecreasing(t *testing.T) {
	p := Policy{Backoff: 300 * time.Millisecond, MaxBackoff: 7 * time.Second}
	prev := time.Duration(0)
	for n := 1; n < 100; n++ {
		d := p.Delay(n)
		if d < prev {
			t.Fatalf("Delay(%d) = %v is less than Delay(%d) = %v", n, d, n-1, prev)
		}
		prev = d
	}
}

func TestDoSuccess(t *testing.T) {
	calls := 0
	attempts, err := Policy{Retries: 3}.Do(context.Background(), func(int) error {
		calls++
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("expected 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestDoEventualSuccess(t *testing.T) {
	var retried []int
	attempts, err := Policy{Retries: 5}.Do(context.Background(), func(attempt int) error {
		if attempt < 3 {
			return errTransient
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("unexpected retry notifications: %v", retried)
	}
}

func TestDoExhaustion(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("retries=%d", retries), func(t *testing.T) {
			calls := 0
			attempts, err := Policy{Retries: retries}.Do(context.Background(), func(int) error {
				calls++
				return errTransient
			}, nil)
			if !errors.Is(err, errTransient) {
				t.Errorf("expected errTransient, got %v", err)
			}
			if calls != retries+1 || attempts != retries+1 {
				t.Errorf("expected %d attempts, got attempts=%d calls=%d", retries+1, attempts, calls)
			}
		})
	}
}

func TestDoFatalStops(t *testing.T) {
	calls := 0
	_, err := Policy{Retries: 5}.Do(context.Background(), func(int) error {
		calls++
		return Fatal(fmt.Errorf("not found: %w", errTransient))
	}, nil)
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !IsFatal(err) {
		t.Error("expected fatal error")
	}
	if !errors.Is(err, errTransient) {
		t.Error("expected wrapped error to be preserved")
	}
}

func TestDoCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Retries: 10, Backoff: time.Hour, MaxBackoff: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, func(int) error { return errTransient }, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestFatal(t *testing.T) {
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}
	if IsFatal(errTransient) {
		t.Error("plain error reported as fatal")
	}
	wrapped := fmt.Errorf("context: %w", Fatal(errTransient))
	if !IsFatal(wrapped) {
		t.Error("wrapped fatal error not detected")
	}
	if Fatal(wrapped) != wrapped {
		t.Error("Fatal should not double-wrap")
	}
}
