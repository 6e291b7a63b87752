package ports

import (
	"context"
	"time"

	"streamwatch/internal/core/domain"
)

type TokenSource interface {
	FetchToken(ctx context.Context) (domain.Credential, error)
}

type CredentialProvider interface {
	EnsureValid(ctx context.Context) (domain.Credential, error)
	Invalidate()
}

// StatusSource fetches remote channel state. Both calls are batched over all
// logins and return maps keyed by lower-cased login.
type StatusSource interface {
	FetchLiveStatus(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.LiveStatus, error)
	FetchProfiles(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.ProfileInfo, error)
}

type SnapshotReader interface {
	Snapshot() *domain.Snapshot
}

type ChannelTracker interface {
	Track(ctx context.Context, login string) domain.TransitionEvent
}

type WatchlistService interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, login string) (domain.TransitionEvent, error)
	Remove(ctx context.Context, login string) error
}

type Metrics interface {
	ObservePollCycle(duration time.Duration, err error)
	RecordTransition(kind domain.TransitionKind)
	SetChannelsOnline(n int)
	RecordCredentialRefresh(err error)
	ClientConnected()
	ClientDisconnected()
	RecordRejectedConnection()
	RecordInboundMessage(kind string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObservePollCycle(time.Duration, error)  {}
func (NopMetrics) RecordTransition(domain.TransitionKind) {}
func (NopMetrics) SetChannelsOnline(int)                  {}
func (NopMetrics) RecordCredentialRefresh(error)          {}
func (NopMetrics) ClientConnected()                       {}
func (NopMetrics) ClientDisconnected()                    {}
func (NopMetrics) RecordRejectedConnection()              {}
func (NopMetrics) RecordInboundMessage(string)            {}
