package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/quickpeek/internal/cdpcontrol"
	"github.com/dgnsrekt/quickpeek/internal/controller"
	"github.com/dgnsrekt/quickpeek/internal/metrics"
	"github.com/dgnsrekt/quickpeek/internal/peek"
	"github.com/dgnsrekt/quickpeek/internal/relay"
	"github.com/dgnsrekt/quickpeek/internal/snapshot"
)

type Service interface {
	Launch(ctx context.Context, rawURL, originTargetID string) (controller.LaunchResult, error)
	ListPeeks(ctx context.Context) []peek.SessionInfo
	GetPeek(ctx context.Context, tabID string) (peek.SessionInfo, error)
	Promote(ctx context.Context, tabID string) error
	Discard(ctx context.Context, tabID string) error
	Dismiss(ctx context.Context, tabID string) error
	HandleMessage(ctx context.Context, raw []byte) error
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
	ListFrames(ctx context.Context, tab string) ([]snapshot.FrameMeta, error)
	GetFrame(ctx context.Context, id string) (snapshot.FrameMeta, error)
	ReadFrameImage(ctx context.Context, id string) ([]byte, string, error)
	DeleteFrame(ctx context.Context, id string) error
}

// Options carries the optional parts of the server. Zero values disable the
// matching routes or middleware.
type Options struct {
	Broker          *relay.Broker
	Metrics         *prometheus.Registry
	HTTPMetrics     *metrics.HTTPMetrics
	LaunchLimiter   *rate.Limiter
	ReadOnlyStreams bool
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	if opts.HTTPMetrics != nil {
		router.Use(opts.HTTPMetrics.Middleware)
	}

	cfg := huma.DefaultConfig("quickpeek API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(streamDocsHTML)); err != nil {
			slog.Debug("stream docs response write failed", "error", err)
		}
	})
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Metrics))
	}
	if opts.Broker != nil {
		var sink relay.ControlSink = svc
		if opts.ReadOnlyStreams {
			sink = nil
		}
		router.Get("/api/v1/events", relay.SSEHandler(opts.Broker))
		router.Get("/api/v1/ws", relay.WebSocketHandler(opts.Broker, sink))
	}

	registerHealthHandlers(api, opts.Broker)
	registerPeekHandlers(api, svc, opts.LaunchLimiter)
	registerFrameHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	switch {
	case errors.Is(err, peek.ErrSessionNotFound), errors.Is(err, snapshot.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, peek.ErrInvalidTabID), errors.Is(err, peek.ErrEmptyURL),
		errors.Is(err, peek.ErrUnknownMessage), errors.Is(err, snapshot.ErrInvalidID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, controller.ErrArchiveDisabled):
		return huma.NewError(http.StatusNotImplemented, err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
