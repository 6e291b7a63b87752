package services

import (
	"context"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"

	"go.uber.org/zap"
)

// WatchlistService is the administrative path onto the watch-list. Adding a
// channel also publishes its current state through the tracker.
type WatchlistService struct {
	repo    ports.WatchlistRepository
	tracker ports.ChannelTracker
	logger  *zap.SugaredLogger
}

func NewWatchlistService(repo ports.WatchlistRepository, tracker ports.ChannelTracker, logger *zap.SugaredLogger) *WatchlistService {
	return &WatchlistService{
		repo:    repo,
		tracker: tracker,
		logger:  logger,
	}
}

func (s *WatchlistService) List(ctx context.Context) ([]string, error) {
	return s.repo.List(ctx)
}

// Add validates login, stores it and returns the synthetic event emitted for
// it. Rejected adds leave the watch-list untouched and emit nothing.
func (s *WatchlistService) Add(ctx context.Context, login string) (domain.TransitionEvent, error) {
	normalized, err := domain.ValidateLogin(login)
	if err != nil {
		return domain.TransitionEvent{}, err
	}

	if err := s.repo.Add(ctx, normalized); err != nil {
		s.logger.Warnw("watch-list add rejected", "login", normalized, "error", err)
		return domain.TransitionEvent{}, err
	}
	s.logger.Infow("channel added to watch-list", "login", normalized)

	if s.tracker == nil {
		return domain.TransitionEvent{}, nil
	}
	return s.tracker.Track(ctx, normalized), nil
}

func (s *WatchlistService) Remove(ctx context.Context, login string) error {
	normalized, err := domain.ValidateLogin(login)
	if err != nil {
		return err
	}

	if err := s.repo.Remove(ctx, normalized); err != nil {
		return err
	}
	s.logger.Infow("channel removed from watch-list", "login", normalized)
	return nil
}

var _ ports.WatchlistService = (*WatchlistService)(nil)
