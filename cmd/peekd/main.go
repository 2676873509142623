package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/quickpeek/internal/api"
	"github.com/dgnsrekt/quickpeek/internal/browser"
	"github.com/dgnsrekt/quickpeek/internal/cdpcontrol"
	"github.com/dgnsrekt/quickpeek/internal/config"
	"github.com/dgnsrekt/quickpeek/internal/controller"
	"github.com/dgnsrekt/quickpeek/internal/journal"
	"github.com/dgnsrekt/quickpeek/internal/metrics"
	"github.com/dgnsrekt/quickpeek/internal/netutil"
	"github.com/dgnsrekt/quickpeek/internal/notify"
	"github.com/dgnsrekt/quickpeek/internal/overlay"
	"github.com/dgnsrekt/quickpeek/internal/peek"
	"github.com/dgnsrekt/quickpeek/internal/relay"
	"github.com/dgnsrekt/quickpeek/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load peekd config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.SlogLevel(), cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("peekd config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"origin_filter", cfg.OriginFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"load_timeout_ms", cfg.LoadTimeoutMS,
		"max_screenshots", cfg.MaxScreenshots,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"archive_dir", cfg.ArchiveDir,
		"journal_dir", cfg.JournalDir,
		"profile_file", cfg.ProfileFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		chromium := browser.NewLauncher(cfg.BrowserConfig())
		if err := chromium.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer chromium.Stop()
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.OriginFilter, cfg.EvalTimeout(), cdpcontrol.CaptureOptions{
		Format:  cfg.CaptureFormat,
		Quality: cfg.CaptureQuality,
	})

	promReg := metrics.NewRegistry()
	registry := peek.NewRegistry()
	bus := peek.NewBus(ctx, registry)

	broker := relay.NewBroker(cfg.Relay.BufferSize)
	overlays := []peek.OverlayFactory{relay.NewPublisher(broker, cfg.Relay).Factory()}

	var frames *snapshot.Store
	if cfg.ArchiveDir != "" {
		frames, err = snapshot.NewStore(cfg.ArchiveDir)
		if err != nil {
			slog.Error("failed to create frame archive", "dir", cfg.ArchiveDir, "error", err)
			os.Exit(1)
		}
		overlays = append(overlays, snapshot.NewRecorder(frames, cfg.ArchiveKeep).Factory())
	}

	observers := []peek.PassObserver{metrics.NewCaptureMetrics(promReg)}
	if cfg.NotifyURL != "" {
		observers = append(observers, notify.NewNotifier(cfg.NotifyURL, nil))
	}
	if cfg.JournalDir != "" {
		passes := journal.New(cfg.JournalDir, cfg.JournalMaxMB)
		defer func() {
			if err := passes.Close(); err != nil {
				slog.Debug("journal close failed", "error", err)
			}
		}()
		observers = append(observers, passes)
	}

	launcher := peek.NewLauncher(registry, cdpClient,
		overlay.Compose(overlay.PageFactory(cdpClient, cdpcontrol.BindingName), overlays...),
		peek.WithCaptureConfig(cfg.CaptureConfig()),
		peek.WithLoadTimeout(cfg.LoadTimeout()),
		peek.WithClock(clockwork.NewRealClock()),
		peek.WithObservers(observers...),
	)
	control := peek.NewControl(registry, cdpClient)
	svc := controller.NewService(cdpClient, registry, launcher, control, frames, metrics.NewPeekMetrics(promReg, registry))

	cdpClient.SetEvents(cdpcontrol.Events{
		OnLoad:    func(ev peek.LoadEvent) { bus.Publish(ev) },
		OnControl: svc.HandleMessage,
		OnTabGone: control.Forget,
	})
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect CDP client", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	h := api.NewServer(svc, api.Options{
		Broker:          broker,
		Metrics:         promReg,
		HTTPMetrics:     metrics.NewHTTPMetrics(promReg),
		LaunchLimiter:   rate.NewLimiter(rate.Limit(cfg.LaunchRate), cfg.LaunchBurst),
		ReadOnlyStreams: cfg.StreamReadOnly,
	})

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("peekd listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("peekd server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("peekd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	broker.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("peekd shutdown failed", "error", err)
	}
	for _, handler := range registry.Handlers() {
		if s, ok := handler.(*peek.Session); ok {
			if err := s.Close(shutdownCtx); err != nil {
				slog.Debug("peek overlay close on shutdown failed", "error", err)
			}
		}
	}
	bus.Wait()
}

func setupLogger(level slog.Level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return nil
}
