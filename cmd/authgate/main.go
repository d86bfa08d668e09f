// Command authgate runs the authenticating reverse proxy: it verifies bearer
// tokens against the configured identity provider realm and forwards
// authenticated requests to the downstream application.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/authgate-io/authgate/auth"
	"github.com/authgate-io/authgate/denylist/redisdeny"
	"github.com/authgate-io/authgate/gateway"
	"github.com/authgate-io/authgate/internal/metrics"
	"github.com/authgate-io/authgate/keyset"
)

type config struct {
	// RealmURL is the base URL of the identity provider realm; it doubles as
	// the expected token issuer. ENV: REALM_URL
	RealmURL string `env:"REALM_URL,default=http://localhost:8080/realms/master"`
	// Audience is the expected aud claim (the client registered with the
	// provider). ENV: AUDIENCE
	Audience string `env:"AUDIENCE,default=authgate"`
	// ListenAddr for the gateway itself. ENV: LISTEN_ADDR
	ListenAddr string `env:"LISTEN_ADDR,default=:8000"`
	// DownstreamURL is the protected application requests are proxied to.
	// ENV: DOWNSTREAM_URL
	DownstreamURL string `env:"DOWNSTREAM_URL,default=http://localhost:8001"`
	// PublicPaths is a comma-separated list of path prefixes that bypass
	// authentication (the health path is always public). ENV: PUBLIC_PATHS
	PublicPaths string `env:"PUBLIC_PATHS"`
	// FetchTimeout bounds the startup discovery and JWKS fetches.
	// ENV: FETCH_TIMEOUT
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT,default=5s"`
	// KeysetRefresh enables periodic JWKS re-fetch when positive.
	// ENV: KEYSET_REFRESH
	KeysetRefresh time.Duration `env:"KEYSET_REFRESH,default=0s"`
	// JWKSFile loads keys from a local JWKS file instead of discovery, with
	// hot reload on change. ENV: JWKS_FILE
	JWKSFile string `env:"JWKS_FILE"`
	// RedisAddr enables the shared token denylist when set. ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`
	// Metrics exposes Prometheus metrics at /metrics. ENV: METRICS
	Metrics bool `env:"METRICS,default=true"`
	// ResourceURL, when set, advertises protected-resource metadata for this
	// URL at /.well-known/oauth-protected-resource. ENV: RESOURCE_URL
	ResourceURL string `env:"RESOURCE_URL"`
	// ServiceName is the resource name used in advertised metadata.
	// ENV: SERVICE_NAME
	ServiceName string `env:"SERVICE_NAME,default=authgate"`
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var cfg config
	if err := envdecode.Decode(&cfg); err != nil {
		log.Error("config.decode.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := loadKeys(ctx, cfg, log)
	if err != nil {
		// Fail fast: no downstream request can be safely authenticated
		// without the provider's signing keys.
		log.Error("keyset.init.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("keyset.init.ok", slog.Int("keys", keys.Len()))

	verifier, err := auth.NewVerifier(keys, cfg.RealmURL, cfg.Audience)
	if err != nil {
		log.Error("verifier.init.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}

	downstream, err := url.Parse(cfg.DownstreamURL)
	if err != nil {
		log.Error("downstream.url.invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}
	proxy := httputil.NewSingleHostReverseProxy(downstream)

	opts := []gateway.Option{gateway.WithLogger(log)}
	if paths := splitPaths(cfg.PublicPaths); len(paths) > 0 {
		opts = append(opts, gateway.WithPublicPaths(paths...))
	}
	if cfg.RedisAddr != "" {
		deny, err := redisdeny.New(redisdeny.Config{RedisAddr: cfg.RedisAddr})
		if err != nil {
			log.Error("denylist.init.fail", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer deny.Close()
		opts = append(opts, gateway.WithDenylist(deny))
	}
	if cfg.ResourceURL != "" {
		opts = append(opts, gateway.WithResourceMetadata(cfg.ResourceURL, cfg.ServiceName))
	}

	gw, err := gateway.New(proxy, verifier, opts...)
	if err != nil {
		log.Error("gateway.init.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	if cfg.Metrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	mux.Handle("/", gw)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway.listen",
		slog.String("addr", cfg.ListenAddr),
		slog.String("realm", cfg.RealmURL),
		slog.String("audience", cfg.Audience),
		slog.String("downstream", cfg.DownstreamURL),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("gateway.serve.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// loadKeys populates the key directory cache before the server accepts
// traffic, from a local file when JWKS_FILE is set, otherwise via OIDC
// discovery. Optional rotation mechanisms are started here too.
func loadKeys(ctx context.Context, cfg config, log *slog.Logger) (*keyset.Set, error) {
	if cfg.JWKSFile != "" {
		keys, err := keyset.FromFile(cfg.JWKSFile, keyset.WithLogger(log))
		if err != nil {
			return nil, err
		}
		go func() {
			if err := keys.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("keyset.watch.fail", slog.String("err", err.Error()))
			}
		}()
		return keys, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()
	keys, err := keyset.Fetch(fetchCtx, cfg.RealmURL,
		keyset.WithLogger(log),
		keyset.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
	)
	if err != nil {
		return nil, err
	}
	if cfg.KeysetRefresh > 0 {
		go func() {
			if err := keys.Refresh(ctx, cfg.KeysetRefresh); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("keyset.refresh.stop", slog.String("err", err.Error()))
			}
		}()
	}
	return keys, nil
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
