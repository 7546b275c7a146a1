package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dgnsrekt/favtube/internal/api"
	"github.com/dgnsrekt/favtube/internal/backend"
	"github.com/dgnsrekt/favtube/internal/browser"
	"github.com/dgnsrekt/favtube/internal/cdp"
	"github.com/dgnsrekt/favtube/internal/cdpcontrol"
	"github.com/dgnsrekt/favtube/internal/config"
	"github.com/dgnsrekt/favtube/internal/controller"
	"github.com/dgnsrekt/favtube/internal/journal"
	"github.com/dgnsrekt/favtube/internal/netutil"
	"github.com/dgnsrekt/favtube/internal/notify"
	"github.com/dgnsrekt/favtube/internal/registration"
	"github.com/dgnsrekt/favtube/internal/relay"
	"github.com/dgnsrekt/favtube/internal/router"
	"github.com/dgnsrekt/favtube/internal/session"
	"github.com/dgnsrekt/favtube/internal/tags"
	"github.com/dgnsrekt/favtube/internal/watcher"
	"gopkg.in/natefinch/lumberjack.v2"
)

// locationSource is what the watcher polls; both CDP drivers satisfy it.
type locationSource interface {
	watcher.LocationSource
	Connect(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.LoadCoordinator()
	if err != nil {
		slog.Error("failed to load coordinator config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("coordinator config loaded",
		"api_base", cfg.APIBase,
		"cdp_url", cfg.CDPURL(),
		"cdp_driver", cfg.CDPDriver,
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"poll_interval_ms", cfg.PollIntervalMS,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"backend_timeout_ms", cfg.BackendTimeoutMS,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"journal_dir", cfg.JournalDir,
		"ntfy_enabled", cfg.NtfyEndpoint != "",
		"config_file", cfg.ConfigFile,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	backendClient := backend.NewClient(cfg.APIBase, nil, cfg.BackendTimeout())
	preflight, cancelPreflight := context.WithTimeout(ctx, cfg.BackendTimeout())
	if err := backendClient.Health(preflight); err != nil {
		slog.Warn("backend not reachable yet, continuing", "api_base", cfg.APIBase, "error", err)
	}
	cancelPreflight()

	broker := relay.NewBroker()
	catalog := tags.NewCatalog()
	msgRouter := router.New(backendClient, registration.New())
	machine := session.NewMachine(msgRouter, broker, catalog)

	var workers sync.WaitGroup
	var jw *journal.Writer
	if cfg.JournalDir != "" {
		jw = journal.NewWriter(cfg.JournalDir, 1000, 50)
		workers.Add(1)
		go func() {
			defer workers.Done()
			jw.Run(ctx, broker)
		}()
	}
	if cfg.NtfyEndpoint != "" {
		n := notify.NewNotifier(cfg.NtfyEndpoint, nil)
		workers.Add(1)
		go func() {
			defer workers.Done()
			n.Run(ctx, broker)
		}()
	}

	var source locationSource
	var tabs controller.TabLister
	switch cfg.CDPDriver {
	case config.DriverChromedp:
		source = cdp.NewLocator(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	default:
		client := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
		source, tabs = client, client
	}
	if err := source.Connect(ctx); err != nil {
		slog.Warn("CDP not reachable yet, the watcher will keep retrying", "cdp_url", cfg.CDPURL(), "error", err)
	}
	defer func() { _ = source.Close() }()

	w := watcher.New(source, machine, cfg.PollInterval())
	w.Start(ctx)

	svc := controller.NewService(controller.Deps{
		Messenger: msgRouter,
		Session:   machine,
		Backend:   backendClient,
		Stream:    broker,
		Location:  w,
		Tabs:      tabs,
	})
	h := api.NewServer(svc, relay.SSEHandler(broker, machine.CurrentEvents))
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("coordinator listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("coordinator server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("coordinator shutting down")

	w.Stop()
	machine.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("coordinator shutdown failed", "error", err)
	}

	workers.Wait()
	if jw != nil {
		if err := jw.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}
}

func setupLogger(level, filename string) error {
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

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
