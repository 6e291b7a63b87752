package services

import (
	"context"
	"sync"

	"streamwatch/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) FetchToken(ctx context.Context) (domain.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Credential), args.Error(1)
}

type MockCredentialProvider struct {
	mock.Mock
}

func (m *MockCredentialProvider) EnsureValid(ctx context.Context) (domain.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Credential), args.Error(1)
}

func (m *MockCredentialProvider) Invalidate() {
	m.Called()
}

type MockStatusSource struct {
	mock.Mock
}

func (m *MockStatusSource) FetchLiveStatus(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.LiveStatus, error) {
	args := m.Called(ctx, cred, logins)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.LiveStatus), args.Error(1)
}

func (m *MockStatusSource) FetchProfiles(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.ProfileInfo, error) {
	args := m.Called(ctx, cred, logins)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.ProfileInfo), args.Error(1)
}

type MockChannelTracker struct {
	mock.Mock
}

func (m *MockChannelTracker) Track(ctx context.Context, login string) domain.TransitionEvent {
	args := m.Called(ctx, login)
	return args.Get(0).(domain.TransitionEvent)
}

// memWatchlist is an in-memory watch-list used where call expectations would
// only add noise.
type memWatchlist struct {
	mu     sync.Mutex
	logins []string
}

func newMemWatchlist(logins ...string) *memWatchlist {
	return &memWatchlist{logins: logins}
}

func (w *memWatchlist) List(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.logins...), nil
}

func (w *memWatchlist) Add(_ context.Context, login string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := domain.NormalizeLogin(login)
	for _, existing := range w.logins {
		if existing == key {
			return domain.ErrAlreadyWatched
		}
	}
	if len(w.logins) >= domain.WatchlistCapacity {
		return domain.ErrWatchlistFull
	}
	w.logins = append(w.logins, key)
	return nil
}

func (w *memWatchlist) Remove(_ context.Context, login string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := domain.NormalizeLogin(login)
	for i, existing := range w.logins {
		if existing == key {
			w.logins = append(w.logins[:i], w.logins[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotWatched
}
