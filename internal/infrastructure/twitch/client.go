package twitch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nicklaw5/helix/v2"
)

const (
	// maxLoginsPerRequest is the page size limit of the streams and users endpoints.
	maxLoginsPerRequest = 100

	defaultTimeout = 10 * time.Second
)

type Config struct {
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	// ProfileTTL is how long fetched profiles are reused. Zero disables the
	// profile cache.
	ProfileTTL time.Duration
	// BreakerThreshold is the number of consecutive failed calls after which
	// remote calls are skipped for BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("twitch client id is empty")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("twitch client secret is empty")
	}
	return nil
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// contextClient binds outgoing helix requests to ctx, which the helix API
// does not accept directly.
type contextClient struct {
	ctx  context.Context
	base *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.base.Do(req.WithContext(c.ctx))
}

// newClient builds a helix client for a single call. appToken may be empty for
// the token request itself.
func newClient(ctx context.Context, cfg Config, base *http.Client, appToken string) (*helix.Client, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		AppAccessToken: appToken,
		HTTPClient:     contextClient{ctx: ctx, base: base},
	})
	if err != nil {
		return nil, fmt.Errorf("helix: NewClient: %w", err)
	}
	return client, nil
}

func chunk(logins []string, size int) [][]string {
	var out [][]string
	for len(logins) > size {
		out = append(out, logins[:size])
		logins = logins[size:]
	}
	if len(logins) > 0 {
		out = append(out, logins)
	}
	return out
}
