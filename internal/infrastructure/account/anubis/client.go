package anubis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/riskibarqy/porras-fc/internal/domain/user"
	"github.com/riskibarqy/porras-fc/internal/platform/cache"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
	"github.com/riskibarqy/porras-fc/internal/platform/resilience"
	"github.com/riskibarqy/porras-fc/internal/usecase"
)

var errAnubisTransient = crerr.New("anubis transient failure")

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 1 << 20
)

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	IntrospectPath string
	RevokePath     string
	AdminKey       string
	Timeout        time.Duration
	CacheTTL       time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
	Logger         *logging.Logger
}

// Client verifies and revokes access tokens issued by the anubis account service.
type Client struct {
	httpClient    *http.Client
	introspectURL string
	revokeURL     string
	adminKey      string
	principals    *cache.Store
	breaker       *resilience.CircuitBreaker
	logger        *logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}

	var principals *cache.Store
	if cfg.CacheTTL > 0 {
		principals = cache.NewStore(cfg.CacheTTL)
	}

	return &Client{
		httpClient:    httpClient,
		introspectURL: buildURL(cfg.BaseURL, cfg.IntrospectPath),
		revokeURL:     buildURL(cfg.BaseURL, cfg.RevokePath),
		adminKey:      strings.TrimSpace(cfg.AdminKey),
		principals:    principals,
		breaker:       resilience.NewCircuitBreakerFromConfig(cfg.CircuitBreaker),
		logger:        logger.Named("anubis"),
	}
}

func (c *Client) VerifyAccessToken(ctx context.Context, token string) (user.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Principal{}, fmt.Errorf("%w: token is required", usecase.ErrUnauthenticated)
	}

	if c.principals == nil {
		return c.introspect(ctx, token)
	}

	v, err := c.principals.GetOrLoad(ctx, hashToken(token), func(ctx context.Context) (any, error) {
		return c.introspect(ctx, token)
	})
	if err != nil {
		return user.Principal{}, err
	}
	principal, _ := v.(user.Principal)
	return principal, nil
}

func (c *Client) introspect(ctx context.Context, token string) (user.Principal, error) {
	var decoded introspectResponse
	err := c.breaker.Do(func() error {
		return c.postJSON(ctx, c.introspectURL, introspectRequest{Token: token}, &decoded)
	}, isCircuitFailure)
	if err != nil {
		return user.Principal{}, c.mapError(ctx, "introspect", err)
	}

	if !decoded.Active {
		return user.Principal{}, fmt.Errorf("%w: inactive token", usecase.ErrUnauthenticated)
	}
	if strings.TrimSpace(decoded.UserID) == "" {
		return user.Principal{}, fmt.Errorf("%w: introspect response has no user_id", usecase.ErrDependencyUnavailable)
	}

	return user.Principal{
		UserID:      decoded.UserID,
		Email:       decoded.Email,
		DisplayName: strings.TrimSpace(decoded.DisplayName),
	}, nil
}

// RevokeAccessToken ends the session on the account service and drops the cached principal.
func (c *Client) RevokeAccessToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", usecase.ErrUnauthenticated)
	}
	if c.principals != nil {
		defer c.principals.Delete(ctx, hashToken(token))
	}
	if c.revokeURL == "" {
		return nil
	}

	err := c.breaker.Do(func() error {
		return c.postJSON(ctx, c.revokeURL, introspectRequest{Token: token}, nil)
	}, isCircuitFailure)
	if err != nil {
		return c.mapError(ctx, "revoke", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload any, target any) error {
	encoded, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.adminKey != "" {
		req.Header.Set("x-admin-key", c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: send request: %v", errAnubisTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", errAnubisTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: token rejected", usecase.ErrUnauthenticated)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: anubis refused the admin key", usecase.ErrDependencyUnavailable)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d", errAnubisTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: unexpected status=%d", usecase.ErrDependencyUnavailable, resp.StatusCode)
	}

	if target == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: decode response: %v", usecase.ErrDependencyUnavailable, err)
	}
	return nil
}

func (c *Client) mapError(ctx context.Context, op string, err error) error {
	switch {
	case crerr.Is(err, resilience.ErrCircuitOpen):
		return fmt.Errorf("%w: anubis %s: %w", usecase.ErrDependencyUnavailable, op, err)
	case isCircuitFailure(err):
		c.logger.WarnContext(ctx, "anubis request failed", "op", op, "error", err)
		return fmt.Errorf("%w: anubis %s: %w", usecase.ErrDependencyUnavailable, op, err)
	}
	return err
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active      bool   `json:"active"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}
