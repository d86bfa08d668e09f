package keyset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
)

// ErrNotRemote indicates a refresh was requested on a Set that was not
// populated from a remote jwks_uri.
var ErrNotRemote = errors.New("keyset: set has no remote jwks_uri")

// Set is a process-wide cache of the provider's signing keys. Construct it
// once at startup with Fetch or FromFile and share it by reference; Lookup is
// safe for unsynchronized concurrent use.
type Set struct {
	keys atomic.Pointer[jose.JSONWebKeySet]

	jwksURI string
	path    string
	client  *http.Client
	log     *slog.Logger
}

// Option configures Fetch and FromFile.
type Option func(*Set)

// WithHTTPClient sets the client used for discovery and JWKS fetches. The
// default client has a 5 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Set) { s.client = c }
}

// WithLogger sets the logger used by Refresh and Watch. If not provided,
// slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) { s.log = l }
}

// Fetch performs OIDC discovery against realmURL and downloads the key set
// named by the discovery document's jwks_uri. Both fetches are bounded by the
// supplied context and the HTTP client's timeout. Any failure is returned to
// the caller, which is expected to abort startup: no request can be
// authenticated without keys.
func Fetch(ctx context.Context, realmURL string, opts ...Option) (*Set, error) {
	if realmURL == "" {
		return nil, errors.New("keyset: realm URL is required")
	}

	s := &Set{}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 5 * time.Second}
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, s.client), realmURL)
	if err != nil {
		return nil, fmt.Errorf("keyset: oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("keyset: invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("keyset: discovery document has no jwks_uri")
	}

	ks, err := fetchKeys(ctx, s.client, meta.JwksURI)
	if err != nil {
		return nil, err
	}

	s.jwksURI = meta.JwksURI
	s.keys.Store(ks)
	return s, nil
}

// Lookup scans the cached set for an exact kid match. An unknown kid yields
// ok == false; there is no default key.
func (s *Set) Lookup(kid string) (jose.JSONWebKey, bool) {
	ks := s.keys.Load()
	if ks == nil {
		return jose.JSONWebKey{}, false
	}
	matches := ks.Key(kid)
	if len(matches) == 0 {
		return jose.JSONWebKey{}, false
	}
	return matches[0], true
}

// Len reports the number of cached keys.
func (s *Set) Len() int {
	ks := s.keys.Load()
	if ks == nil {
		return 0
	}
	return len(ks.Keys)
}

// JWKSURI returns the remote key set URL discovered at startup, or "" for a
// file-backed set.
func (s *Set) JWKSURI() string { return s.jwksURI }

// Refresh re-fetches the pinned jwks_uri every interval until ctx is
// canceled, swapping in each successfully parsed set. Fetch failures keep the
// current keys and are retried on the next tick. It blocks; run it on its own
// goroutine.
func (s *Set) Refresh(ctx context.Context, interval time.Duration) error {
	if s.jwksURI == "" {
		return ErrNotRemote
	}
	if interval <= 0 {
		return errors.New("keyset: refresh interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ks, err := fetchKeys(ctx, s.client, s.jwksURI)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WarnContext(ctx, "keyset.refresh.fail", slog.String("err", err.Error()))
			continue
		}
		s.keys.Store(ks)
		s.log.DebugContext(ctx, "keyset.refresh.ok", slog.Int("keys", len(ks.Keys)))
	}
}

func fetchKeys(ctx context.Context, client *http.Client, url string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("keyset: build jwks request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyset: jwks fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keyset: jwks fetch returned status %d", resp.StatusCode)
	}

	var ks jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&ks); err != nil {
		return nil, fmt.Errorf("keyset: invalid jwks body: %w", err)
	}
	if len(ks.Keys) == 0 {
		return nil, errors.New("keyset: jwks contains no keys")
	}
	return &ks, nil
}
