package auth

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenURL is the Baidu OAuth endpoint.
	DefaultTokenURL = "https://aip.baidubce.com/oauth/2.0/token"
	// DefaultTTL keeps a 30-day token for 29 days.
	DefaultTTL = 29 * 24 * time.Hour
	// expirySkewDivisor keeps a token at most 29/30 of its stated lifetime.
	expirySkewDivisor = 30
)

// ErrAuth is returned when no usable access token could be obtained.
var ErrAuth = errors.New("access token unavailable")

// Config contains token endpoint configuration.
type Config struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	// TTL is how long a fetched token is reused. It is capped at 29/30 of the
	// lifetime the endpoint reports.
	TTL     time.Duration
	Timeout time.Duration
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenProvider caches one bearer token per process. Concurrent refreshes share a
// single request.
type TokenProvider struct {
	config     Config
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
	group      singleflight.Group

	// OnRefresh, when set, is called after every token request with its outcome.
	OnRefresh func(err error)

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenProvider validates the configuration and returns a provider with an empty cache.
func NewTokenProvider(config Config, httpClient *http.Client, logger *log.Logger) (*TokenProvider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultTokenURL
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TokenProvider{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// SetClock replaces the time source.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.now = now
}

// Token returns the cached token while it is still valid and fetches a new one otherwise.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expiresAt := p.token, p.expiresAt
	p.mu.RUnlock()
	if token != "" && p.now().Before(expiresAt) {
		return token, nil
	}

	// The shared request outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := p.group.DoChan("token", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.Timeout)
		defer cancel()
		return p.refresh(fetchCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			p.logger.Println("Token refresh shared with a concurrent caller")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(ErrAuth, ctx.Err().Error())
	}
}

// Invalidate drops the cached token so the next Token call fetches a fresh one.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}

// ExpiresAt returns the expiry of the cached token, zero when none is cached.
func (p *TokenProvider) ExpiresAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.expiresAt
}

func (p *TokenProvider) refresh(ctx context.Context) (string, error) {
	token, ttl, err := p.fetch(ctx)
	if p.OnRefresh != nil {
		p.OnRefresh(err)
	}
	if err != nil {
		p.logger.Printf("❌ Token request failed: %v", err)
		return "", err
	}

	p.mu.Lock()
	p.token = token
	p.expiresAt = p.now().Add(ttl)
	p.mu.Unlock()

	p.logger.Printf("✅ Access token refreshed, valid for %s", ttl)
	return token, nil
}

func (p *TokenProvider) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(ErrAuth, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(ErrAuth, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, errors.Wrap(ErrAuth, err.Error())
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, errors.Wrapf(ErrAuth, "status %d: unreadable response", resp.StatusCode)
	}
	if parsed.AccessToken == "" {
		reason := parsed.ErrorDescription
		if reason == "" {
			reason = parsed.Error
		}
		if reason == "" {
			reason = resp.Status
		}
		return "", 0, errors.Wrap(ErrAuth, reason)
	}

	ttl := p.config.TTL
	if parsed.ExpiresIn > 0 {
		stated := time.Duration(parsed.ExpiresIn) * time.Second
		if limit := stated - stated/expirySkewDivisor; limit < ttl {
			ttl = limit
		}
	}
	return parsed.AccessToken, ttl, nil
}
