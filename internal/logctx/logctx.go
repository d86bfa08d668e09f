package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler and enriches every record with request and
// actor data carried on the context. Token contents and claim sets are never
// attached here; only the resolved user and the delegation flag are logged.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if ad, ok := ctx.Value(actorDataKey{}).(*ActorData); ok {
		r.AddAttrs(slog.Group("actor",
			slog.String("user", ad.User),
			slog.Bool("delegated", ad.Delegated),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type actorDataKey struct{}

type ActorData struct {
	User      string
	Delegated bool
}

func WithActorData(ctx context.Context, data *ActorData) context.Context {
	return context.WithValue(ctx, actorDataKey{}, data)
}
