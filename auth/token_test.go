package auth

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var quiet = log.New(io.Discard, "", 0)

func tokenServer(t *testing.T, calls *int32, delay time.Duration, body map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Method != http.MethodPost || r.Form.Get("grant_type") != "client_credentials" ||
			r.Form.Get("client_id") != "id" || r.Form.Get("client_secret") != "secret" {
			t.Errorf("unexpected token request: %s %v", r.Method, r.Form)
		}
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
}

func newProvider(t *testing.T, endpoint string, ttl time.Duration) *TokenProvider {
	t.Helper()
	p, err := NewTokenProvider(Config{Endpoint: endpoint, ClientID: "id", ClientSecret: "secret", TTL: ttl}, nil, quiet)
	if err != nil {
		t.Fatalf("NewTokenProvider failed: %v", err)
	}
	return p
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0, map[string]interface{}{"access_token": "tok", "expires_in": 2592000})
	defer srv.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newProvider(t, srv.URL, DefaultTTL)
	p.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		if err != nil || tok != "tok" {
			t.Fatalf("Token() = %q, %v", tok, err)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected 1 token request, got %d", atomic.LoadInt32(&calls))
	}
	if want := now.Add(DefaultTTL); !p.ExpiresAt().Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, p.ExpiresAt())
	}

	now = now.Add(DefaultTTL)
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() after expiry failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected refresh after expiry, got %d requests", atomic.LoadInt32(&calls))
	}
}

func TestTokenTTLCappedByStatedLifetime(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0, map[string]interface{}{"access_token": "tok", "expires_in": 60})
	defer srv.Close()

	now := time.Now()
	p := newProvider(t, srv.URL, time.Hour)
	p.SetClock(func() time.Time { return now })
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.ExpiresAt().Sub(now); got != 58*time.Second {
		t.Errorf("Expected 58s ttl, got %s", got)
	}
}

func TestTokenConcurrentRefreshCoalesces(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 50*time.Millisecond, map[string]interface{}{"access_token": "tok"})
	defer srv.Close()

	p := newProvider(t, srv.URL, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok, err := p.Token(context.Background()); err != nil || tok != "tok" {
				t.Errorf("Token() = %q, %v", tok, err)
			}
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected a single in-flight refresh, got %d requests", atomic.LoadInt32(&calls))
	}
}

func TestTokenRefreshSurvivesCancelledCaller(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 200*time.Millisecond, map[string]interface{}{"access_token": "tok"})
	defer srv.Close()

	p := newProvider(t, srv.URL, time.Hour)
	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Token(first)
		firstErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	type result struct {
		tok string
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := p.Token(context.Background())
		second <- result{tok, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, ErrAuth) {
		t.Errorf("Expected ErrAuth for the cancelled caller, got %v", err)
	}
	res := <-second
	if res.err != nil || res.tok != "tok" {
		t.Fatalf("Token() = %q, %v for the live caller", res.tok, res.err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected one shared request, got %d", atomic.LoadInt32(&calls))
	}
	if tok, err := p.Token(context.Background()); err != nil || tok != "tok" {
		t.Errorf("Expected the cached token, got %q, %v", tok, err)
	}
}

func TestTokenMissingIsAuthError(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0, map[string]interface{}{"error": "invalid_client", "error_description": "unknown client id"})
	defer srv.Close()

	p := newProvider(t, srv.URL, time.Hour)
	var refreshErr error
	p.OnRefresh = func(err error) { refreshErr = err }
	_, err := p.Token(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Expected ErrAuth, got %v", err)
	}
	if refreshErr == nil {
		t.Error("Expected OnRefresh to observe the failure")
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0, map[string]interface{}{"access_token": "tok"})
	defer srv.Close()

	p := newProvider(t, srv.URL, time.Hour)
	p.Token(context.Background())
	p.Invalidate()
	if !p.ExpiresAt().IsZero() {
		t.Error("Expected empty cache after Invalidate")
	}
	p.Token(context.Background())
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 requests, got %d", atomic.LoadInt32(&calls))
	}
}

func TestNewTokenProviderValidation(t *testing.T) {
	if _, err := NewTokenProvider(Config{ClientSecret: "s"}, nil, nil); err == nil {
		t.Error("Expected error without client id")
	}
	if _, err := NewTokenProvider(Config{ClientID: "i"}, nil, nil); err == nil {
		t.Error("Expected error without client secret")
	}
}
