package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/authgate-io/authgate/auth"
	"github.com/authgate-io/authgate/denylist"
	"github.com/authgate-io/authgate/identity"
	"github.com/authgate-io/authgate/internal/logctx"
	"github.com/authgate-io/authgate/internal/metrics"
	"github.com/authgate-io/authgate/internal/wellknown"
)

var _ http.Handler = (*Handler)(nil)

const (
	// Canonical header names; Go matches request headers case-insensitively.
	authorizationHeader = "Authorization"
	actorUserHeader     = "X-Actor-User"
	actorEmailHeader    = "X-Actor-Email"

	defaultHealthPath = "/healthz"
	prmPath           = "/.well-known/oauth-protected-resource"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// writeDetail emits the gateway's uniform rejection body. Shape:
// {"detail":"<reason>"}. Reasons are short machine-readable strings; no stack
// traces or claim contents ever reach the response.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger       *slog.Logger
	publicPaths  []string
	healthPath   string
	deny         denylist.Denylist
	resource     string
	resourceName string
	advertisePRM bool
}

// WithLogger sets the slog logger used by the handler. If not provided,
// slog.Default() is used. The handler enriches records with per-request data.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithPublicPaths adds path prefixes that bypass authentication entirely.
// The health path is always public and need not be listed.
func WithPublicPaths(prefixes ...string) Option {
	return func(c *newConfig) { c.publicPaths = append(c.publicPaths, prefixes...) }
}

// WithHealthPath overrides the built-in health check path prefix
// (default /healthz).
func WithHealthPath(path string) Option {
	return func(c *newConfig) { c.healthPath = strings.TrimSpace(path) }
}

// WithDenylist enables the post-verification revocation check. Tokens whose
// jti is on the denylist are rejected with 401 even though they verify.
func WithDenylist(d denylist.Denylist) Option {
	return func(c *newConfig) { c.deny = d }
}

// WithResourceMetadata advertises RFC 9728 protected-resource metadata at
// /.well-known/oauth-protected-resource (a public path). resource is the
// externally visible URL of the protected endpoint; name is optional.
func WithResourceMetadata(resource, name string) Option {
	return func(c *newConfig) {
		c.advertisePRM = true
		c.resource = resource
		c.resourceName = name
	}
}

// Handler is the gateway middleware. Construct with New; safe for concurrent
// use, with no shared mutable state between requests.
type Handler struct {
	log        *slog.Logger
	verifier   *auth.Verifier
	next       http.Handler
	healthPath string
	public     []string
	deny       denylist.Denylist
	prmJSON    []byte
}

// New builds the gateway in front of next. The verifier's key set must
// already be populated; New performs no I/O.
func New(next http.Handler, verifier *auth.Verifier, opts ...Option) (*Handler, error) {
	if next == nil {
		return nil, errors.New("gateway: downstream handler is required")
	}
	if verifier == nil {
		return nil, errors.New("gateway: verifier is required")
	}

	cfg := &newConfig{logger: slog.Default(), healthPath: defaultHealthPath}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.healthPath == "" {
		cfg.healthPath = defaultHealthPath
	}

	h := &Handler{
		log:        slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		verifier:   verifier,
		next:       next,
		healthPath: cfg.healthPath,
		public:     cfg.publicPaths,
		deny:       cfg.deny,
	}

	if cfg.advertisePRM {
		doc := wellknown.ProtectedResourceMetadata{
			Resource:               cfg.resource,
			AuthorizationServers:   []string{verifier.Issuer()},
			JwksURI:                verifier.JWKSURI(),
			BearerMethodsSupported: []string{"authorization_header"},
			ResourceName:           cfg.resourceName,
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("gateway: marshal resource metadata: %w", err)
		}
		h.prmJSON = b
	}

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)
	path := r.URL.Path

	if strings.HasPrefix(path, h.healthPath) {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomePublic).Inc()
		h.handleHealthz(w)
		return
	}
	if h.prmJSON != nil && (path == prmPath || path == prmPath+"/") {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomePublic).Inc()
		w.Header().Set("Content-Type", jsonMediaType.String())
		_, _ = w.Write(h.prmJSON)
		return
	}
	for _, prefix := range h.public {
		if strings.HasPrefix(path, prefix) {
			metrics.RequestsTotal.WithLabelValues(metrics.OutcomePublic).Inc()
			h.next.ServeHTTP(w, r)
			return
		}
	}

	tok, ok := bearerToken(r)
	if !ok {
		h.log.InfoContext(ctx, "auth.check.missing")
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeMissingBearer).Inc()
		writeDetail(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	start := time.Now()
	claims, err := h.verifier.Verify(ctx, tok)
	metrics.ObserveVerify(start)
	if err != nil {
		if ctx.Err() != nil {
			// Client went away mid-verification; nothing to write.
			return
		}
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		writeDetail(w, http.StatusUnauthorized, rejectionDetail(err))
		return
	}

	if h.deny != nil {
		if jti := claims.TokenID(); jti != "" {
			revoked, derr := h.deny.Contains(ctx, jti)
			if derr != nil {
				// Fail closed: an unverifiable revocation state must not admit
				// a possibly revoked token.
				h.log.ErrorContext(ctx, "auth.denylist.err", slog.String("err", derr.Error()))
				metrics.RequestsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
				writeDetail(w, http.StatusServiceUnavailable, "Revocation check unavailable")
				return
			}
			if revoked {
				h.log.InfoContext(ctx, "auth.check.revoked")
				metrics.RequestsTotal.WithLabelValues(metrics.OutcomeRevoked).Inc()
				writeDetail(w, http.StatusUnauthorized, "Token revoked")
				return
			}
		}
	}

	decision := identity.Decide(claims)
	overrides := identity.Overrides{
		User:  r.Header.Get(actorUserHeader),
		Email: r.Header.Get(actorEmailHeader),
	}
	actor := identity.Resolve(claims, decision, overrides)

	ctx = identity.WithActor(ctx, actor)
	ctx = logctx.WithActorData(ctx, &logctx.ActorData{
		User:      actor.User,
		Delegated: decision == identity.Delegated,
	})
	fwd := r.WithContext(ctx)

	// The downstream only ever sees the resolved identity: caller-supplied
	// X-Actor-* values are replaced, so a caller without the delegation role
	// cannot smuggle them past the gateway.
	setOrDelete(fwd.Header, actorUserHeader, actor.User)
	setOrDelete(fwd.Header, actorEmailHeader, actor.Email)

	if decision == identity.Delegated && (overrides.User != "" || overrides.Email != "") {
		metrics.DelegatedRequestsTotal.Inc()
	}
	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeForwarded).Inc()
	h.next.ServeHTTP(w, fwd)
}

func (h *Handler) handleHealthz(w http.ResponseWriter) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// bearerToken extracts the token from the Authorization header. The scheme
// comparison is case-insensitive; surrounding whitespace is trimmed.
func bearerToken(r *http.Request) (string, bool) {
	hdr := r.Header.Get(authorizationHeader)
	const prefix = "Bearer "
	if len(hdr) <= len(prefix) || !strings.EqualFold(hdr[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(hdr[len(prefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// rejectionDetail maps verification failures to the response reason. Unknown
// key and issuer mismatch get fixed strings; everything else surfaces the
// verifier's message.
func rejectionDetail(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnknownKey):
		return "Unknown key id (kid)"
	case errors.Is(err, auth.ErrBadIssuer):
		return "Bad issuer"
	default:
		return err.Error()
	}
}

func setOrDelete(h http.Header, key, value string) {
	if value == "" {
		h.Del(key)
		return
	}
	h.Set(key, value)
}
