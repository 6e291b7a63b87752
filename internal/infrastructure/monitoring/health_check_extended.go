package monitoring

import (
	"context"
	"fmt"
	"time"

	"streamwatch/internal/core/ports"
)

// PollProgress reports when the poll engine last completed a cycle.
type PollProgress interface {
	LastSuccess() time.Time
	Interval() time.Duration
}

// AddPollFreshnessCheck fails when no cycle has succeeded within maxMissed
// poll intervals.
func (h *HealthChecker) AddPollFreshnessCheck(engine PollProgress, maxMissed int, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	h.AddCheck("poll", func(ctx context.Context) (bool, error) {
		last := engine.LastSuccess()
		if last.IsZero() {
			return false, fmt.Errorf("no successful poll yet")
		}
		limit := time.Duration(maxMissed) * engine.Interval()
		if age := now().Sub(last); age > limit {
			return false, fmt.Errorf("last successful poll %s ago", age.Round(time.Second))
		}
		return true, nil
	}, 0)
}

// AddRepositoryCheck adds a watch-list repository health check
func (h *HealthChecker) AddRepositoryCheck(repo ports.WatchlistRepository, timeout time.Duration) {
	h.AddCheck("watchlist", func(ctx context.Context) (bool, error) {
		if _, err := repo.List(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddDependencyCheck wraps a ping-style function, such as the repository
// factory's Redis health check.
func (h *HealthChecker) AddDependencyCheck(name string, ping func(ctx context.Context) error, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) (bool, error) {
		if err := ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}
