// Package server orchestrates all components: COMMS client, page surface, bridge, relay, call journal, HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/wallet-bridge/internal/config"
	"github.com/morezero/wallet-bridge/pkg/catalog"
	"github.com/morezero/wallet-bridge/pkg/commsutil"
	"github.com/morezero/wallet-bridge/pkg/db"
	"github.com/morezero/wallet-bridge/pkg/dispatcher"
	"github.com/morezero/wallet-bridge/pkg/events"
	"github.com/morezero/wallet-bridge/pkg/metrics"
	"github.com/morezero/wallet-bridge/pkg/relay"
	"github.com/morezero/wallet-bridge/pkg/surface/cdpsurface"
	"github.com/morezero/wallet-bridge/pkg/surface/wssurface"
)

const logPrefix = "server:server"

// pageSurface is a channel.Surface the server owns and closes on shutdown.
type pageSurface interface {
	Deliver(ctx context.Context, wireText string) error
	Close()
}

// Server is the wallet-bridge orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	wsServer   *http.Server
	surface    pageSurface
	bridge     *Bridge
	journal    callLister
	recorder   *db.JournalRecorder

	commsConnected  func() bool
	surfaceAttached func() bool
	pingDB          func(ctx context.Context) error
	metricsHandler  http.Handler
}

// SetupLogging installs the default slog handler for level ("debug", "info", "warn", "error").
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the bridge, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting wallet-bridge (originator %s)", logPrefix, cfg.Originator()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}
	defer s.cleanup()

	// Step 1: Load operations catalog
	var catalogPaths []string
	if cfg.CatalogFile != "" {
		catalogPaths = append(catalogPaths, cfg.CatalogFile)
	}
	cat, catalogPath, err := catalog.LoadCatalog(catalogPaths...)
	if err != nil {
		return fmt.Errorf("%s - failed to load operations catalog: %w", logPrefix, err)
	}
	if cat != nil {
		slog.Info(fmt.Sprintf("%s - Operations catalog %s loaded from %s", logPrefix, cat.Name, catalogPath))
	}

	// Step 2: Connect to COMMS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	s.commsConnected = nc.IsConnected
	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Call journal (optional)
	var recorders []dispatcher.Recorder
	if cfg.JournalEnabled() {
		if err := s.openJournal(ctx); err != nil {
			return err
		}
		s.recorder.Start(ctx)
		recorders = append(recorders, s.recorder)
	}

	// Step 4: Assemble the bridge
	bridge, err := NewBridge(NewBridgeParams{
		Originator:       cfg.Originator(),
		CallTimeout:      cfg.CallTimeout,
		DeliverTimeout:   cfg.DeliverTimeout,
		Legacy:           cfg.LegacyProtocol,
		Catalog:          cat,
		MinWalletVersion: cfg.MinWalletVersion,
		Publisher:        events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.EventSubject}),
		Recorders:        recorders,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to create bridge: %w", logPrefix, err)
	}
	s.bridge = bridge
	bridge.Start(ctx)

	reg, err := metrics.NewRegistry(bridge.Metrics())
	if err != nil {
		return fmt.Errorf("%s - failed to register metrics: %w", logPrefix, err)
	}
	s.metricsHandler = metrics.Handler(reg)

	// Step 5: Attach the page surface
	if err := s.startSurface(ctx); err != nil {
		return err
	}

	// Step 6: Serve relay requests
	relaySubject := cfg.RelaySubject()
	sub, err := relay.NewRelay(bridge.Dispatcher(), bridge).Subscribe(ctx, nc, relay.SubscribeParams{
		Subject:        relaySubject,
		Queue:          cfg.BridgeQueue,
		RequestTimeout: cfg.RelayRequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, relaySubject, err)
	}
	defer sub.Unsubscribe()
	slog.Info(fmt.Sprintf("%s - Subscribed to %s (queue %s)", logPrefix, relaySubject, cfg.BridgeQueue))

	// Step 7: Start HTTP health server
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.newMux()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Wallet-bridge is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
	return nil
}

func (s *Server) openJournal(ctx context.Context) error {
	cfg := s.cfg
	if cfg.RunMigrations {
		if err := db.EnsureJournalDatabase(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	s.pingDB = pool.Ping

	if cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	repo := db.NewRepository(pool)
	s.journal = repo
	slog.Info(fmt.Sprintf("%s - Call journal enabled (retention %s)", logPrefix, cfg.JournalRetention))
	s.recorder = db.NewJournalRecorder(repo, db.JournalOptions{
		Originator: cfg.Originator(),
		Retention:  cfg.JournalRetention,
	})
	return nil
}

func (s *Server) startSurface(ctx context.Context) error {
	cfg := s.cfg
	switch cfg.Surface {
	case config.SurfaceWebSocket:
		ws := wssurface.New(wssurface.Config{OriginPatterns: cfg.WSAllowedOrigins}, wssurface.Handlers{
			OnMessage: s.bridge.HandleMessage,
			OnLoad:    s.bridge.PageLoaded,
		})
		s.surface = ws
		s.surfaceAttached = ws.Attached
		s.bridge.AttachSurface(ws)

		mux := http.NewServeMux()
		mux.Handle(wssurface.Path, ws)
		s.wsServer = &http.Server{Addr: cfg.WSSurfaceAddr, Handler: mux}
		go func() {
			slog.Info(fmt.Sprintf("%s - Page surface listening on ws://%s%s", logPrefix, cfg.WSSurfaceAddr, wssurface.Path))
			if err := s.wsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error(fmt.Sprintf("%s - page surface server error: %v", logPrefix, err))
			}
		}()
		return nil

	default:
		// The tab opens blank so OnLoad cannot fire before the bridge can deliver to it.
		tab, err := cdpsurface.New(cdpsurface.Config{
			RemoteURL:    cfg.ChromeRemoteURL,
			Headless:     cfg.ChromeHeadless,
			UserAgent:    cfg.UserAgent,
			StartTimeout: cfg.BrowserStartTimeout,
		}, cdpsurface.Handlers{
			OnMessage: s.bridge.HandleMessage,
			OnLoad:    s.bridge.PageLoaded,
		})
		if err != nil {
			return fmt.Errorf("%s - failed to start browser: %w", logPrefix, err)
		}
		s.surface = tab
		s.bridge.AttachSurface(tab)

		navCtx, cancel := context.WithTimeout(ctx, cfg.BrowserStartTimeout)
		defer cancel()
		if err := tab.Navigate(navCtx, cfg.StartURL); err != nil {
			return fmt.Errorf("%s - failed to open %s: %w", logPrefix, cfg.StartURL, err)
		}
		s.surfaceAttached = func() bool { return true }
		slog.Info(fmt.Sprintf("%s - Wallet page opened at %s", logPrefix, cfg.StartURL))
		return nil
	}
}

// cleanup releases everything Run acquired, in reverse order.
func (s *Server) cleanup() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpServer != nil {
		s.httpServer.Shutdown(shutdownCtx)
	}
	if s.wsServer != nil {
		s.wsServer.Shutdown(shutdownCtx)
	}
	if s.surface != nil {
		s.surface.Close()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.nc != nil {
		commsutil.Drain(s.nc)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}
