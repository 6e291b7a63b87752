package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultPollInterval = 5 * time.Second

// PollEngine periodically fetches the remote state of every watched channel,
// publishes the resulting snapshot and emits one event per transition.
//
// Cycles never overlap: a tick that finds a cycle (or a Track call) still in
// flight is skipped. Within a cycle the snapshot is replaced before any event
// is emitted, and offline events precede online events.
type PollEngine struct {
	watchlist ports.WatchlistRepository
	creds     ports.CredentialProvider
	source    ports.StatusSource
	events    chan<- domain.TransitionEvent
	interval  time.Duration

	metrics ports.Metrics
	logger  *zap.SugaredLogger
	tracer  trace.Tracer
	now     func() time.Time

	cycleMu     sync.Mutex
	primed      bool
	snapshot    atomic.Pointer[domain.Snapshot]
	lastSuccess atomic.Int64
}

func NewPollEngine(
	watchlist ports.WatchlistRepository,
	creds ports.CredentialProvider,
	source ports.StatusSource,
	events chan<- domain.TransitionEvent,
	interval time.Duration,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *PollEngine {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	e := &PollEngine{
		watchlist: watchlist,
		creds:     creds,
		source:    source,
		events:    events,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
		tracer:    otel.Tracer("streamwatch/poll"),
		now:       time.Now,
	}
	e.snapshot.Store(domain.EmptySnapshot())
	return e
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (e *PollEngine) Run(ctx context.Context) error {
	e.logger.Infow("poll engine started", "interval", e.interval)

	e.tick(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("poll engine stopped")
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *PollEngine) tick(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		e.logger.Warnw("previous poll cycle still in flight, skipping tick")
		return
	}
	defer e.cycleMu.Unlock()

	_ = e.cycle(ctx)
}

// RunCycle performs a single poll cycle, waiting for any in-flight one first.
func (e *PollEngine) RunCycle(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	return e.cycle(ctx)
}

// Snapshot returns the latest fully built snapshot. Callers must not modify it.
func (e *PollEngine) Snapshot() *domain.Snapshot {
	return e.snapshot.Load()
}

// LastSuccess returns when the last cycle completed, or the zero time.
func (e *PollEngine) LastSuccess() time.Time {
	ns := e.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (e *PollEngine) Interval() time.Duration {
	return e.interval
}

func (e *PollEngine) cycle(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "poll.cycle")
	defer span.End()

	start := e.now()
	defer func() {
		e.metrics.ObservePollCycle(e.now().Sub(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Errorw("poll cycle aborted", "error", err)
		}
	}()

	cred, err := e.creds.EnsureValid(ctx)
	if err != nil {
		return err
	}

	logins, err := e.watchlist.List(ctx)
	if err != nil {
		return fmt.Errorf("read watch-list: %w", err)
	}
	span.SetAttributes(attribute.Int("watchlist.size", len(logins)))

	streams, profiles, err := e.fetch(ctx, cred, logins)
	if err != nil {
		return err
	}

	next := domain.NewSnapshot(logins, streams, profiles, e.now())
	prev := e.snapshot.Swap(next)
	e.lastSuccess.Store(next.TakenAt.UnixNano())
	e.metrics.SetChannelsOnline(len(next.Online))

	// The first cycle only establishes the baseline.
	if !e.primed {
		e.primed = true
		e.logger.Infow("initial snapshot taken", "online", len(next.Online), "offline", len(next.OfflineProfiles))
		return nil
	}

	transitions := domain.Diff(prev, next)
	if transitions.Empty() {
		return nil
	}
	span.SetAttributes(
		attribute.Int("transitions.offline", len(transitions.WentOffline)),
		attribute.Int("transitions.online", len(transitions.WentOnline)),
	)
	return e.emit(ctx, transitions.Events(profiles))
}

func (e *PollEngine) fetch(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.LiveStatus, map[string]domain.ProfileInfo, error) {
	if len(logins) == 0 {
		return map[string]domain.LiveStatus{}, map[string]domain.ProfileInfo{}, nil
	}

	streams, err := e.source.FetchLiveStatus(ctx, cred, logins)
	if err != nil {
		e.checkRejected(err)
		return nil, nil, err
	}

	profiles, err := e.source.FetchProfiles(ctx, cred, logins)
	if err != nil {
		e.checkRejected(err)
		return nil, nil, err
	}

	return streams, profiles, nil
}

func (e *PollEngine) checkRejected(err error) {
	if errors.Is(err, domain.ErrCredentialRejected) {
		e.creds.Invalidate()
	}
}

func (e *PollEngine) emit(ctx context.Context, events []domain.TransitionEvent) error {
	for _, event := range events {
		select {
		case e.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.metrics.RecordTransition(event.Kind)
		e.logger.Infow("channel transition",
			"login", event.Login(),
			"kind", event.Kind,
			"synthetic", event.Synthetic,
		)
	}
	return nil
}

// Track publishes the current state of a newly watched channel. It fetches
// fresh status for that channel alone, merges it into the snapshot and emits
// one synthetic event. When the fetch fails the event reflects the snapshot
// already held.
func (e *PollEngine) Track(ctx context.Context, login string) domain.TransitionEvent {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	key := domain.NormalizeLogin(login)
	current := e.snapshot.Load()

	event, next, err := e.fetchOne(ctx, key, current)
	if err != nil {
		e.logger.Warnw("fresh status unavailable, using held snapshot", "login", key, "error", err)
		event = eventFromSnapshot(current, key)
	} else {
		e.snapshot.Store(next)
		e.metrics.SetChannelsOnline(len(next.Online))
	}
	event.Synthetic = true

	if err := e.emit(ctx, []domain.TransitionEvent{event}); err != nil {
		e.logger.Warnw("synthetic event not delivered", "login", key, "error", err)
	}
	return event
}

func (e *PollEngine) fetchOne(ctx context.Context, key string, current *domain.Snapshot) (domain.TransitionEvent, *domain.Snapshot, error) {
	cred, err := e.creds.EnsureValid(ctx)
	if err != nil {
		return domain.TransitionEvent{}, nil, err
	}

	streams, profiles, err := e.fetch(ctx, cred, []string{key})
	if err != nil {
		return domain.TransitionEvent{}, nil, err
	}

	var profile *domain.ProfileInfo
	if p, ok := profiles[key]; ok {
		profile = &p
	}

	if status, ok := streams[key]; ok {
		next := current.WithChannel(key, &status, nil, e.now())
		return domain.TransitionEvent{Kind: domain.WentOnline, Status: status, Profile: profile}, next, nil
	}

	next := current.WithChannel(key, nil, profile, e.now())
	return domain.TransitionEvent{Kind: domain.WentOffline, Status: offlineStatus(key, profile), Profile: profile}, next, nil
}

func eventFromSnapshot(snap *domain.Snapshot, key string) domain.TransitionEvent {
	if status, ok := snap.Online[key]; ok {
		return domain.TransitionEvent{Kind: domain.WentOnline, Status: status}
	}

	var profile *domain.ProfileInfo
	if p, ok := snap.OfflineProfiles[key]; ok {
		profile = &p
	}
	return domain.TransitionEvent{Kind: domain.WentOffline, Status: offlineStatus(key, profile), Profile: profile}
}

func offlineStatus(key string, profile *domain.ProfileInfo) domain.LiveStatus {
	status := domain.LiveStatus{Login: key}
	if profile != nil {
		status.ChannelID = profile.ID
		status.DisplayName = profile.DisplayName
	}
	return status
}

var (
	_ ports.SnapshotReader = (*PollEngine)(nil)
	_ ports.ChannelTracker = (*PollEngine)(nil)
)
