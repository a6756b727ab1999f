// Package daemon composes the relay's components into an fx application.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/config"
	"github.com/matheus3301/relay/internal/graph"
	"github.com/matheus3301/relay/internal/hub"
	"github.com/matheus3301/relay/internal/lock"
	"github.com/matheus3301/relay/internal/logging"
	"github.com/matheus3301/relay/internal/platform"
	"github.com/matheus3301/relay/internal/relay"
	"github.com/matheus3301/relay/internal/server"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string // optional TOML config file; empty = env/defaults only
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRegistry,
			provideGraphClient,
			provideEngine,
			provideHub,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	logger.Info("acquiring daemon lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath))
	return db, nil
}

func provideRegistry(cfg *config.Config) *platform.Registry {
	return platform.NewRegistry(
		platform.NewWhatsApp(cfg.GraphBaseURL, cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID),
		platform.NewInstagram(cfg.GraphBaseURL, cfg.InstagramToken),
	)
}

func provideGraphClient() *graph.Client {
	return graph.NewClient()
}

func provideEngine(db *store.DB, b *bus.Bus, reg *platform.Registry, gc *graph.Client, cfg *config.Config, logger *zap.Logger) *relay.Engine {
	return relay.NewEngine(db, b, reg, gc, cfg.VerifyToken, cfg.DefaultPlatform, logger)
}

func provideHub(db *store.DB, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(db, b, logger)
}

func provideServer(engine *relay.Engine, db *store.DB, h *hub.Hub, cfg *config.Config, logger *zap.Logger) *server.Server {
	return server.New(engine, db, h, cfg.Addr, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *server.Server, h *hub.Hub, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	hubCtx, hubCancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go h.Run(hubCtx)

			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping http server", zap.Error(err))
			}
			hubCancel()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
