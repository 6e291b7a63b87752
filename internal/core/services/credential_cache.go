package services

import (
	"context"
	"sync"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey = "credential"
	// refreshTimeout bounds a token request that no caller can cancel.
	refreshTimeout = 15 * time.Second
)

// CredentialCache hands out a valid bearer credential, fetching a new one only
// when the held credential is absent or expired.
type CredentialCache struct {
	source  ports.TokenSource
	metrics ports.Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time

	mu      sync.RWMutex
	current *domain.Credential

	group singleflight.Group
}

func NewCredentialCache(source ports.TokenSource, metrics ports.Metrics, logger *zap.SugaredLogger) *CredentialCache {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &CredentialCache{
		source:  source,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// EnsureValid returns the held credential while it is valid. Otherwise the
// first caller starts a refresh and concurrent callers share its result. The
// refresh is detached from the caller's cancellation, so a caller that gives
// up only stops waiting for it.
func (c *CredentialCache) EnsureValid(ctx context.Context) (domain.Credential, error) {
	if cred, ok := c.valid(); ok {
		return cred, nil
	}

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// A flight that finished just before this one may already have refreshed.
		if cred, ok := c.valid(); ok {
			return cred, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		c.logger.Debugw("refreshing credential")
		cred, err := c.source.FetchToken(fetchCtx)
		c.metrics.RecordCredentialRefresh(err)
		if err != nil {
			return nil, &domain.AuthError{Err: err}
		}

		c.mu.Lock()
		c.current = &cred
		c.mu.Unlock()

		c.logger.Infow("credential refreshed", "expires_at", cred.ExpiresAt)
		return cred, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Credential{}, res.Err
		}
		return res.Val.(domain.Credential), nil
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	}
}

// Invalidate drops the held credential so the next caller refreshes it.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *CredentialCache) valid() (domain.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.current.ValidAt(c.now()) {
		return domain.Credential{}, false
	}
	return *c.current, true
}

var _ ports.CredentialProvider = (*CredentialCache)(nil)
