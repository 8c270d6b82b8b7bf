package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/wabox/wabox/internal/broadcast"
	"github.com/wabox/wabox/internal/bus"
	"github.com/wabox/wabox/internal/config"
	"github.com/wabox/wabox/internal/ingest"
	"github.com/wabox/wabox/internal/lock"
	"github.com/wabox/wabox/internal/logging"
	"github.com/wabox/wabox/internal/media"
	"github.com/wabox/wabox/internal/session"
	"github.com/wabox/wabox/internal/status"
	"github.com/wabox/wabox/internal/store"
	"github.com/wabox/wabox/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideMediaStore,
			provideEngine,
			provideSender,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		// A missing config file is the common case; all settings have defaults.
		return &config.Config{}
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ArchiveDBPath(p.SessionName)
	db, err := store.Open(dbPath)
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
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, b, logger)
}

func provideMediaStore(p Params, cfg *config.Config, db *store.DB, adapter *wa.Adapter, logger *zap.Logger) *media.Store {
	root := cfg.MediaDir
	if root == "" {
		root = session.MediaDir(p.SessionName)
	}
	return media.NewStore(db, adapter, root, logger)
}

func provideEngine(db *store.DB, ms *media.Store, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, ms, b, logger)
}

func provideSender(cfg *config.Config, db *store.DB, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *broadcast.Sender {
	builtins := make(broadcast.GroupList, 0, len(cfg.Broadcast.Groups))
	for _, g := range cfg.Broadcast.Groups {
		builtins = append(builtins, broadcast.RecipientGroup{Name: g.Name, JIDs: g.JIDs})
	}
	if len(builtins) == 0 {
		for _, name := range broadcast.DefaultBuiltins {
			builtins = append(builtins, broadcast.RecipientGroup{Name: name})
		}
	}
	return broadcast.NewSender(db, adapter, builtins, cfg.Broadcast.DefaultJIDs, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, adapter *wa.Adapter, engine *ingest.Engine, sender *broadcast.Sender, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the ingestion engine (subscribes to wa.* bus events).
			engine.Start(context.Background())

			// Register event handler for whatsmeow events.
			handler := wa.NewEventHandler(b, machine, db, logger)
			adapter.RegisterEventHandler(handler.Handle)

			// Start the broadcast sender.
			sender.Start(context.Background())

			// Transition state based on auth status.
			if adapter.IsLoggedIn() {
				_ = machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Error)
						return
					}
					if err := adapter.SyncJoinedGroups(context.Background(), db); err != nil {
						logger.Warn("group sync failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = machine.Transition(status.AuthRequired)
				go runQRAuth(adapter, db, logger)
			}

			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			engine.Stop()
			adapter.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// runQRAuth runs the pairing flow, printing each QR code to stderr until
// the phone scans one or the flow times out.
func runQRAuth(adapter *wa.Adapter, db *store.DB, logger *zap.Logger) {
	events, err := adapter.StartQRAuth(context.Background())
	if err != nil {
		logger.Error("failed to start QR auth", zap.Error(err))
		return
	}
	for evt := range events {
		switch evt.Type {
		case wa.AuthEventQRCode:
			fmt.Fprintln(os.Stderr, "Scan this QR code with WhatsApp on your phone:")
			fmt.Fprintln(os.Stderr, wa.RenderQR(evt.QRCode))
		case wa.AuthEventAuthenticated:
			logger.Info("authenticated")
			if err := adapter.SyncJoinedGroups(context.Background(), db); err != nil {
				logger.Warn("group sync failed", zap.Error(err))
			}
		case wa.AuthEventTimeout:
			logger.Warn("QR pairing timed out, restart the daemon to retry")
		case wa.AuthEventAuthFailed:
			logger.Error("authentication failed", zap.String("reason", evt.Message))
		}
	}
}
