// Flashguard daemon - samples video sources, warns on dangerous flashing, and
// serves the control and observer APIs
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/config"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/detector"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/events"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/flash"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/journal"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/messaging"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/monitor"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/server"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/session"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source/browser"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source/screen"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/source/synthetic"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/store"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, _ = trace.EnsureContext(ctx)
	log := trace.Logger(ctx)

	// Persistence tiers
	local := store.NewMemory()
	synced, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = synced.Close() }()
	unwatch := synced.Watch(func(c store.Change) {
		log.Debug("synced tier updated", "key", c.Key, "deleted", c.Deleted)
	})
	defer unwatch()

	m := metrics.New()
	hub := events.NewHub(events.DefaultMaxEntries, events.DefaultEventBuffer)

	registry := session.New(local)
	if err := registry.Load(ctx); err != nil {
		log.Warn("session registry load failed, starting empty", "error", err)
	}

	agg := stats.New(local, synced)
	agg.OnCommit(func(c stats.Counters) { hub.Emit(events.Event{Type: events.Stats, Data: c}) })
	agg.Start(ctx)
	m.WatchDegraded(agg.Degraded)
	if c, err := agg.Snapshot(ctx); err == nil {
		log.Info("stats restored", "videos", c.VideosMonitored, "warnings", c.WarningsIssued, "flashes", c.FlashesDetected)
	}

	// Counters stay local unless a peer daemon owns them.
	var counters monitor.Stats = agg
	if cfg.StatsAddr != "" {
		peer, err := messaging.Dial(cfg.StatsAddr)
		if err != nil {
			log.Error("failed to dial stats peer", "addr", cfg.StatsAddr, "error", err)
			os.Exit(1)
		}
		defer func() { _ = peer.Close() }()
		counters = messaging.NewRemoteStats(peer, cfg.StatsAddr)
		log.Info("forwarding stats to peer", "addr", cfg.StatsAddr)
	}

	var jr monitor.Journal
	var batcher *journal.Batcher
	if cfg.JournalEnabled {
		batcher = journal.NewBatcher(synced, journal.DefaultMaxSize, journal.DefaultFlushDelay)
		batcher.OnFlush(m.JournalFlushed)
		jr = batcher
	}

	mon := monitor.New(ctx, monitor.Config{
		Detector: detector.Config{
			Flash: flash.Config{
				WarmupFrames:      cfg.WarmupFrames,
				MinBrightness:     cfg.MinBrightness,
				RelativeThreshold: cfg.RelativeThreshold,
				AbsoluteThreshold: cfg.AbsoluteThreshold,
				RedThreshold:      cfg.RedThreshold,
				WindowMs:          cfg.WindowMs,
				Frequency:         cfg.FlashFrequency,
			},
			FrameSkip:        cfg.FrameSkip,
			SeekRearmSeconds: cfg.SeekRearmSeconds,
		},
		RefreshRate: cfg.RefreshRate,
		MaxWidth:    cfg.MaxFrameWidth,
		MaxHeight:   cfg.MaxFrameHeight,
		Enabled:     cfg.MonitorEnabled,
	}, monitor.Deps{
		Hub:      hub,
		Stats:    counters,
		Registry: registry,
		Journal:  jr,
		Metrics:  m,
	})
	attachSources(ctx, cfg, mon)

	// Control service
	router := messaging.NewRouter(mon, agg)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	messaging.RegisterControlServer(grpcServer, router)
	lis, err := net.Listen("tcp", cfg.ControlAddr)
	if err != nil {
		log.Error("failed to listen for control requests", "addr", cfg.ControlAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("control server error", "error", err)
		}
	}()

	// Create HTTP/WebSocket server
	srv := server.New(server.Deps{
		Control: mon,
		Stats:   agg,
		Hub:     hub,
		Router:  router,
		Metrics: m,
		History: synced,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("flashguard starting", "http", cfg.HTTPAddr, "control", cfg.ControlAddr, "sources", strings.Join(cfg.Sources, ","))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	srv.Close()
	mon.Close()
	if batcher != nil {
		batcher.Stop()
	}
	agg.Stop()
	log.Info("shutdown complete")
}

// attachSources starts a detector for every configured source. A source
// that cannot start is logged and skipped.
func attachSources(ctx context.Context, cfg *config.Config, mon *monitor.Manager) {
	log := trace.Logger(ctx)
	for _, name := range cfg.Sources {
		switch name {
		case config.SourceScreen:
			h := mon.Attach(screen.NewPlayer(screen.NewCapturer()))
			log.Info("screen source attached", "handle", h)
		case config.SourceBrowser:
			p, err := browser.Open(ctx, browser.Config{
				DebugURL:  cfg.BrowserDebugURL,
				PageURL:   cfg.BrowserPageURL,
				Selector:  cfg.VideoSelector,
				MaxWidth:  cfg.MaxFrameWidth,
				MaxHeight: cfg.MaxFrameHeight,
			})
			if err != nil {
				log.Warn("browser source unavailable", "error", err)
				continue
			}
			h := mon.Attach(p)
			log.Info("browser source attached", "handle", h, "url", p.URL())
		case config.SourceSynthetic:
			p := synthetic.New("synthetic://strobe", synthetic.Strobe(150*time.Millisecond, 60, 255))
			_ = p.Play(ctx)
			h := mon.Attach(p)
			log.Info("synthetic source attached", "handle", h)
		}
	}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
