package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/pkg/cache"
	"streamwatch/pkg/circuitbreaker"
	"streamwatch/pkg/tracing"

	"github.com/nicklaw5/helix/v2"
	"go.uber.org/zap"
)

// StatusSource reads live status and profiles from the Helix API.
type StatusSource struct {
	cfg      Config
	http     *http.Client
	profiles *cache.Cache[domain.ProfileInfo]
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.SugaredLogger
}

func NewStatusSource(cfg Config, logger *zap.SugaredLogger) (*StatusSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &StatusSource{
		cfg:    cfg,
		http:   cfg.httpClient(),
		logger: logger,
	}
	if cfg.ProfileTTL > 0 {
		s.profiles = cache.New[domain.ProfileInfo](cfg.ProfileTTL)
	}
	if cfg.BreakerThreshold > 0 {
		s.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
			IsFailure:        countsAgainstRemote,
		})
		s.breaker.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Warnw("twitch circuit breaker changed state", "from", from.String(), "to", to.String())
		})
	}
	return s, nil
}

// countsAgainstRemote excludes a rejected credential, which the credential
// cache recovers from, and our own cancellation.
func countsAgainstRemote(err error) bool {
	return !errors.Is(err, domain.ErrCredentialRejected) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// call runs one remote request through the breaker, if any, inside a span.
func (s *StatusSource) call(ctx context.Context, name string, size int, fn func() error) error {
	spanCtx, span := tracing.TraceRemoteCall(ctx, name, size)
	defer span.End()

	var err error
	if s.breaker == nil {
		err = fn()
	} else {
		err = s.breaker.Execute(fn)
	}
	if err != nil {
		tracing.RecordError(spanCtx, err)
		return &domain.FetchError{Call: name, Err: err}
	}
	return nil
}

func (s *StatusSource) FetchLiveStatus(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.LiveStatus, error) {
	client, err := newClient(ctx, s.cfg, s.http, cred.Value)
	if err != nil {
		return nil, &domain.FetchError{Call: "streams", Err: err}
	}

	out := make(map[string]domain.LiveStatus, len(logins))
	for _, batch := range chunk(logins, maxLoginsPerRequest) {
		var resp *helix.StreamsResponse
		err := s.call(ctx, "streams", len(batch), func() error {
			var err error
			resp, err = client.GetStreams(&helix.StreamsParams{
				UserLogins: batch,
				First:      maxLoginsPerRequest,
			})
			if err != nil {
				return err
			}
			return checkResponse(resp.ResponseCommon)
		})
		if err != nil {
			return nil, err
		}

		for _, stream := range resp.Data.Streams {
			status := toLiveStatus(stream)
			out[status.Key()] = status
		}
	}

	s.logger.Debugw("fetched live status", "requested", len(logins), "online", len(out))
	return out, nil
}

// FetchProfiles returns cached profiles where available and requests only the
// rest.
func (s *StatusSource) FetchProfiles(ctx context.Context, cred domain.Credential, logins []string) (map[string]domain.ProfileInfo, error) {
	out := make(map[string]domain.ProfileInfo, len(logins))
	missing := logins
	if s.profiles != nil {
		out, missing = s.profiles.GetMany(logins)
	}
	if len(missing) == 0 {
		return out, nil
	}

	client, err := newClient(ctx, s.cfg, s.http, cred.Value)
	if err != nil {
		return nil, &domain.FetchError{Call: "users", Err: err}
	}

	for _, batch := range chunk(missing, maxLoginsPerRequest) {
		var resp *helix.UsersResponse
		err := s.call(ctx, "users", len(batch), func() error {
			var err error
			resp, err = client.GetUsers(&helix.UsersParams{
				Logins: batch,
			})
			if err != nil {
				return err
			}
			return checkResponse(resp.ResponseCommon)
		})
		if err != nil {
			return nil, err
		}

		for _, user := range resp.Data.Users {
			profile := toProfileInfo(user)
			out[profile.Key()] = profile
			if s.profiles != nil {
				s.profiles.Set(profile.Key(), profile)
			}
		}
	}

	s.logger.Debugw("fetched profiles", "requested", len(missing), "cached", len(logins)-len(missing), "found", len(out))
	return out, nil
}

func checkResponse(resp helix.ResponseCommon) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w (%s) %s", domain.ErrCredentialRejected, resp.Error, resp.ErrorMessage)
	default:
		return fmt.Errorf("status %d (%s) %s", resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
}

func toLiveStatus(s helix.Stream) domain.LiveStatus {
	return domain.LiveStatus{
		ChannelID:    s.UserID,
		Login:        domain.NormalizeLogin(s.UserLogin),
		DisplayName:  s.UserName,
		Title:        s.Title,
		CategoryID:   s.GameID,
		Category:     s.GameName,
		ViewerCount:  s.ViewerCount,
		StartedAt:    s.StartedAt,
		Tags:         s.Tags,
		Language:     s.Language,
		IsMature:     s.IsMature,
		ThumbnailURL: s.ThumbnailURL,
	}
}

func toProfileInfo(u helix.User) domain.ProfileInfo {
	return domain.ProfileInfo{
		ID:              u.ID,
		Login:           domain.NormalizeLogin(u.Login),
		DisplayName:     u.DisplayName,
		Type:            u.Type,
		BroadcasterType: u.BroadcasterType,
		Description:     u.Description,
		ProfileImageURL: u.ProfileImageURL,
		OfflineImageURL: u.OfflineImageURL,
		ViewCount:       u.ViewCount,
		CreatedAt:       u.CreatedAt.Time,
	}
}

var _ ports.StatusSource = (*StatusSource)(nil)
