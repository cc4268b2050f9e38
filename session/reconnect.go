package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/RogersSccot/STI-Vision/metrics"
)

// ReconnectConfig controls Reconnect. Sessions never retry on their own; a
// caller that wants a new connection after OnFatal asks for it explicitly.
type ReconnectConfig struct {
	MaxRetries    int           // negative retries forever
	RetryDelay    time.Duration // first backoff step
	MaxRetryDelay time.Duration // cap
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

type DialFunc func(ctx context.Context) (*Session, error)

// Reconnect calls dial until it succeeds, waiting retryDelay * 2^(n-1) after
// the n-th failure.
func Reconnect(ctx context.Context, dial DialFunc, cfg ReconnectConfig, m *metrics.Collector) (*Session, error) {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := dial(ctx)
		if err == nil {
			if attempt > 0 {
				log.Printf("[session] reconnected after %d attempts", attempt)
			}
			return s, nil
		}
		log.Printf("[session] connection failed: %v", err)

		attempt++
		m.Reconnect()
		if cfg.MaxRetries >= 0 && attempt > cfg.MaxRetries {
			return nil, fmt.Errorf("session: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(attempt, cfg)
		log.Printf("[session] retrying in %v (attempt %d)", delay, attempt)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(shift))
	if cfg.MaxRetryDelay > 0 && (delay > cfg.MaxRetryDelay || delay <= 0) {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
