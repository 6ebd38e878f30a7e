package bootstrap

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"hazardsync/internal/bootstrap/config"
	"hazardsync/internal/bootstrap/database"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
	cacheinfra "hazardsync/internal/infrastructure/cache"
	"hazardsync/internal/infrastructure/notify"
	sqliterepo "hazardsync/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "hazardsync/internal/infrastructure/persistence/sqlite/uow"
	"hazardsync/internal/infrastructure/tokenstore"
	"hazardsync/internal/ports"
	"hazardsync/internal/usecase/hazards"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRemoteRepository,
			fx.As(new(ports.RemoteDatabase)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(
		fx.Annotate(
			tokenstore.New,
			fx.As(new(ports.TokenStore)),
		),
	),
	fx.Provide(provideSignals),
	fx.Provide(provideFanout),
	fx.Provide(hazards.NewService),
	fx.Invoke(migrateOnStart),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithComponent(p.Ctx, "bootstrap.fx")
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithComponent(ctx, "bootstrap.fx")

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

type closableSignals interface {
	ports.ChangeSignals
	Close() error
}

// provideSignals picks the change-signal transport. The none driver still
// returns an in-process broadcaster so local writers wake local watchers.
// It takes the database so the sqlite directory exists before fswatch
// starts watching it.
func provideSignals(lc fx.Lifecycle, ctx context.Context, cfg config.Config, _ *gorm.DB) (ports.ChangeSignals, error) {
	logCtx := logging.WithComponent(ctx, "bootstrap.fx")

	var (
		signals closableSignals
		err     error
	)
	switch cfg.Notify.Driver {
	case config.NotifyDriverNATS:
		signals, err = notify.DialNATS(logCtx, cfg.Notify.NATSURL, cfg.Notify.Subject, clientName(cfg))
	case config.NotifyDriverFSWatch:
		path := database.SQLitePath(cfg.Database.DSN)
		if path == "" {
			logging.Warn(logCtx, "fswatch needs a file database, falling back to in-process signals")
			signals = notify.NewBroadcaster()
		} else {
			signals, err = notify.WatchFile(logCtx, path, cfg.Notify.Debounce)
		}
	default:
		signals = notify.NewBroadcaster()
	}
	if err != nil {
		return nil, errs.Wrapf(err, "open %s change signals", cfg.Notify.Driver)
	}

	logging.Info(logCtx, "change signals ready", slog.String("driver", cfg.Notify.Driver))
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return signals.Close()
		},
	})
	return signals, nil
}

// provideFanout starts the reconciliation actor for the lifetime of the
// application.
func provideFanout(lc fx.Lifecycle, ctx context.Context) *hazards.Fanout {
	fanout := hazards.NewFanout()
	runCtx, cancel := context.WithCancel(logging.WithComponent(ctx, "hazards.fanout"))
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				_ = fanout.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			fanout.Close()
			select {
			case <-done:
			case <-stopCtx.Done():
				cancel()
				return stopCtx.Err()
			}
			cancel()
			return nil
		},
	})
	return fanout
}

func migrateOnStart(lc fx.Lifecycle, ctx context.Context, cfg config.Config, app *App) {
	if !cfg.Database.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return app.InitSchema(ctx)
		},
	})
}

func clientName(cfg config.Config) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return cfg.App.Name
	}
	return cfg.App.Name + "@" + host
}
