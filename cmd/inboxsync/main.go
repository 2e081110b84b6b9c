// Package main provides the inboxsync daemon entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/inboxsync/internal/application/inbox"
	"github.com/lllypuk/inboxsync/internal/config"
	httphandler "github.com/lllypuk/inboxsync/internal/handler/http"
	"github.com/lllypuk/inboxsync/internal/infrastructure/gateway"
	"github.com/lllypuk/inboxsync/internal/infrastructure/httpserver"
	"github.com/lllypuk/inboxsync/internal/infrastructure/metrics"
	"github.com/lllypuk/inboxsync/internal/infrastructure/platform"
	realtime "github.com/lllypuk/inboxsync/internal/infrastructure/websocket"
	"github.com/lllypuk/inboxsync/internal/push"
	"github.com/lllypuk/inboxsync/internal/service"
	"github.com/lllypuk/inboxsync/internal/session"
	"github.com/lllypuk/inboxsync/internal/worker"
)

const version = "0.1.0"

//nolint:funlen // Main function handles startup orchestration and is readable as-is
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	logger.Info("starting inboxsync",
		slog.String("version", version),
		slog.String("backend", cfg.Backend.BaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)

	sess := setupSession(cfg, logger)

	gw := gateway.NewClient(sess,
		gateway.WithLogger(logger),
		gateway.WithObserver(syncMetrics),
	)

	store := inbox.NewStore(
		inbox.WithWindowSize(cfg.Inbox.PageSize),
		inbox.WithLogger(logger),
	)
	userInbox := inbox.New(store, gw,
		inbox.WithNavigator(logNavigator{logger: logger}),
		inbox.WithInboxLogger(logger),
	)

	platformConfig := platform.LocalConfig{
		Capabilities: platform.Capabilities{
			BackgroundAgent:    cfg.Push.BackgroundAgent,
			Push:               cfg.Push.Supported,
			LocalNotifications: cfg.Push.LocalNotifications,
		},
		Permission: platform.ParsePermission(cfg.Push.Permission),
		Endpoint:   cfg.Push.Endpoint,
		StateFile:  cfg.Push.StateFile,
	}
	local := platform.NewLocal(platformConfig,
		platform.WithPrompter(platform.NewTerminalPrompter(os.Stdin, os.Stderr)),
		platform.WithLogger(logger),
	)

	pushManager := push.NewManager(gw, local, push.WithLogger(logger))
	pushManager.Restore(ctx)

	syncService := service.NewSync(sess, store, gw,
		service.WithLogger(logger),
		service.WithNotifier(local),
		service.WithObserver(syncMetrics),
		service.WithPollerConfig(worker.UnreadPollerConfig{
			Interval: cfg.Polling.Interval,
			Enabled:  cfg.Polling.Enabled,
		}),
		service.WithChannelOptions(
			realtime.WithChannelConfig(realtime.ChannelConfig{
				ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
				ReconnectDelay:    cfg.Realtime.ReconnectDelay,
				ReconnectDelayMax: cfg.Realtime.ReconnectDelayMax,
			}),
			realtime.WithChannelLogger(logger),
			realtime.WithObserver(syncMetrics),
			realtime.WithTransports(buildTransports(cfg, logger)...),
		),
	)
	syncService.SetPollObserver(syncMetrics)

	if startErr := syncService.Start(ctx); startErr != nil {
		logger.Warn("notification sync not active", slog.String("error", startErr.Error()))
	}

	var server *httpserver.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		server = setupServer(cfg, logger, userInbox, store, syncService, gw, pushManager)
		go func() {
			serverErr <- server.Start()
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	syncService.Stop()

	if server != nil {
		if shutdownErr := server.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("failed to shutdown HTTP server", slog.String("error", shutdownErr.Error()))
		}
	}

	logger.Info("inboxsync shutdown complete")
}

// setupLogger creates and configures the structured logger based on configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Log.Level),
		AddSource: cfg.IsDevelopment(),
	}

	switch cfg.Log.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// handleShutdown listens for OS signals and cancels the context.
func handleShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-quit
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	cancel()
}

// setupSession builds the session from the backend configuration. A token file
// takes precedence over an inline token.
func setupSession(cfg *config.Config, logger *slog.Logger) *session.Session {
	var tokens session.TokenSource = session.StaticToken(cfg.Backend.Token)
	if cfg.Backend.TokenFile != "" {
		tokens = session.FileToken(cfg.Backend.TokenFile)
	}

	return session.New(session.Config{
		BaseURL:     cfg.Backend.BaseURL,
		RealtimeURL: cfg.Backend.RealtimeURL,
		EventsURL:   cfg.Backend.EventsURL,
		HTTPClient:  &http.Client{Timeout: cfg.Backend.RequestTimeout},
	}, tokens,
		session.WithLogger(logger),
		session.WithAuthHandler(session.AuthHandlerFunc(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "session token rejected, refresh the token and restart",
				slog.String("error", err.Error()),
			)
		})),
	)
}

// buildTransports creates the realtime transports in configured preference order.
// The SSE transport gets its own client: a request timeout would cut the stream.
func buildTransports(cfg *config.Config, logger *slog.Logger) []realtime.Transport {
	transportConfig := realtime.DefaultTransportConfig()
	transportConfig.ReadBufferSize = cfg.Realtime.ReadBufferSize
	transportConfig.WriteBufferSize = cfg.Realtime.WriteBufferSize
	transportConfig.PingInterval = cfg.Realtime.PingInterval
	transportConfig.PongWait = cfg.Realtime.PongWait
	transportConfig.HandshakeTimeout = cfg.Realtime.HandshakeTimeout

	transports := make([]realtime.Transport, 0, len(cfg.Realtime.Transports))
	for _, name := range cfg.Realtime.Transports {
		switch name {
		case config.TransportWebSocket:
			transports = append(transports,
				realtime.NewWebSocketTransport(cfg.Backend.RealtimeURL, transportConfig, logger))
		case config.TransportSSE:
			transports = append(transports, realtime.NewSSETransport(cfg.Backend.EventsURL, nil))
		}
	}
	return transports
}

// setupServer wires the local control API.
func setupServer(
	cfg *config.Config,
	logger *slog.Logger,
	userInbox *inbox.Inbox,
	store *inbox.Store,
	syncService *service.Sync,
	gw *gateway.Client,
	pushManager *push.Manager,
) *httpserver.Server {
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	router := httpserver.NewRouter(server.Echo(), httpserver.RouterConfig{
		Logger:       logger,
		Gatherer:     prometheus.DefaultGatherer,
		Readiness:    syncReadiness{sync: syncService},
		AllowOrigins: cfg.Server.AllowOrigins,
	})
	router.RegisterAll(
		httphandler.NewInboxHandler(userInbox, store, syncService),
		httphandler.NewSettingsHandler(gw),
		httphandler.NewPushHandler(pushManager),
		httphandler.NewSyncHandler(syncService),
	)

	return server
}

// syncReadiness reports ready while the activation runs with a live realtime
// channel. Polling alone keeps the counter right but not the item list.
type syncReadiness struct {
	sync *service.Sync
}

func (r syncReadiness) IsReady(context.Context) bool {
	return isReady(r.sync.Status())
}

func isReady(status service.Status) bool {
	return status.Active && status.RealtimeRunning
}

// logNavigator stands in for the presentation layer: deep links are logged.
type logNavigator struct {
	logger *slog.Logger
}

func (n logNavigator) Navigate(ctx context.Context, url string) {
	n.logger.InfoContext(ctx, "open notification link", slog.String("url", url))
}

func (n logNavigator) ClosePanel(ctx context.Context) {
	n.logger.DebugContext(ctx, "notification panel closed")
}
