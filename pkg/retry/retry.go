package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // spread each delay by up to ±25%

	// Permanent errors stop retrying immediately (matched with errors.Is).
	Permanent []error
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// used up or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay(cfg, attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isPermanent(err, cfg.Permanent) {
			return err
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func delay(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}

	if cfg.Jitter && d > 0 {
		spread := d / 4
		d = d - spread + rand.Float64()*2*spread
	}
	return time.Duration(d)
}

func isPermanent(err error, permanent []error) bool {
	for _, target := range permanent {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
