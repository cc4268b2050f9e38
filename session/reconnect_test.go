package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultReconnectConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestReconnectSucceedsAfterFailures(t *testing.T) {
	cfg := ReconnectConfig{MaxRetries: 5, RetryDelay: time.Millisecond, MaxRetryDelay: 5 * time.Millisecond}
	calls := 0
	want := &Session{ID: "ok"}
	s, err := Reconnect(context.Background(), func(context.Context) (*Session, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("refused")
		}
		return want, nil
	}, cfg, nil)
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if s != want || calls != 3 {
		t.Errorf("got %v after %d calls", s, calls)
	}
}

func TestReconnectGivesUp(t *testing.T) {
	cfg := ReconnectConfig{MaxRetries: 2, RetryDelay: time.Millisecond, MaxRetryDelay: time.Millisecond}
	refused := errors.New("refused")
	calls := 0
	_, err := Reconnect(context.Background(), func(context.Context) (*Session, error) {
		calls++
		return nil, refused
	}, cfg, nil)
	if !errors.Is(err, refused) {
		t.Fatalf("err = %v, want wrapped refused", err)
	}
	if calls != 3 {
		t.Errorf("dial called %d times, want 3", calls)
	}
}

func TestReconnectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := ReconnectConfig{MaxRetries: -1, RetryDelay: time.Hour, MaxRetryDelay: time.Hour}
	_, err := Reconnect(ctx, func(context.Context) (*Session, error) {
		cancel()
		return nil, errors.New("refused")
	}, cfg, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
