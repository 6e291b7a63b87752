package twitch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
)

// expirySkew is subtracted from the advertised lifetime so a credential is
// renewed slightly before the remote side stops accepting it.
const expirySkew = time.Minute

// TokenSource obtains app access tokens with the client-credentials grant.
type TokenSource struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewTokenSource(cfg Config) (*TokenSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TokenSource{
		cfg:  cfg,
		http: cfg.httpClient(),
		now:  time.Now,
	}, nil
}

func (s *TokenSource) FetchToken(ctx context.Context) (domain.Credential, error) {
	client, err := newClient(ctx, s.cfg, s.http, "")
	if err != nil {
		return domain.Credential{}, err
	}

	issuedAt := s.now()
	resp, err := client.RequestAppAccessToken(nil)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("helix: RequestAppAccessToken: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Credential{}, fmt.Errorf("helix: RequestAppAccessToken failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	if resp.Data.AccessToken == "" {
		return domain.Credential{}, fmt.Errorf("helix: RequestAppAccessToken returned an empty token")
	}

	lifetime := time.Duration(resp.Data.ExpiresIn) * time.Second
	if lifetime > 2*expirySkew {
		lifetime -= expirySkew
	}

	return domain.Credential{
		Value:     resp.Data.AccessToken,
		ExpiresAt: issuedAt.Add(lifetime),
	}, nil
}

var _ ports.TokenSource = (*TokenSource)(nil)
