package main

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/alexisbeaulieu97/cadence/internal/config"
	"github.com/alexisbeaulieu97/cadence/internal/engine"
	"github.com/alexisbeaulieu97/cadence/internal/host"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/activities"
	infraconfig "github.com/alexisbeaulieu97/cadence/internal/infrastructure/config"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/events"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/store"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// AppContext bundles long-lived services created at startup.
type AppContext struct {
	Config *config.AppConfig
	Logger ports.Logger
	Store  ports.SnapshotStore
	Host   *host.Host
	Loader *infraconfig.CadenceLoader
}

// newAppContext loads the runtime configuration and wires the store, the
// activity chain and the host. Logs go to logOut.
func newAppContext(ctx context.Context, flags *rootFlags, logOut io.Writer) (*AppContext, error) {
	cfg, err := config.LoadAppConfig(flags.configPath, os.LookupEnv)
	if err != nil {
		return nil, newCommandError("start", "loading runtime configuration", err, "Check the file passed with --config.")
	}

	logger, err := newLogger(cfg.Log, flags.verbose, logOut)
	if err != nil {
		return nil, newCommandError("start", "creating logger", err, "Use one of debug, info, warn or error as log level.")
	}

	snapshots, err := store.Open(ctx, storeConfig(cfg.Store), logger)
	if err != nil {
		return nil, newCommandError("start", "opening snapshot store", err, "Verify the store driver and DSN.")
	}

	publisher := events.NewLoggingPublisher(logger)
	h := host.New(snapshots, newGateway(cfg.Activities, logger),
		host.WithLogger(logger),
		host.WithEvents(publisher),
		host.WithEngineOptions(engine.WithSettleDelay(cfg.Engine.SettleDelay)),
	)

	return &AppContext{
		Config: cfg,
		Logger: logger,
		Store:  snapshots,
		Host:   h,
		Loader: infraconfig.NewCadenceLoader(logger),
	}, nil
}

// Close parks every running engine and releases the store.
func (a *AppContext) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(a.Host.Shutdown(ctx), a.Store.Close())
}

func newLogger(cfg config.LogConfig, verbose bool, out io.Writer) (ports.Logger, error) {
	level := cfg.Level
	if verbose {
		level = "debug"
	}

	human := isTerminal(out)
	if cfg.HumanReadable != nil {
		human = *cfg.HumanReadable
	}

	return logging.New(logging.Options{
		Writer:        out,
		Level:         level,
		HumanReadable: human,
		Component:     "cli",
	})
}

func newGateway(cfg config.ActivitiesConfig, logger ports.Logger) ports.ActivityGateway {
	var mailer activities.Mailer = activities.NewMockMailer(logger, cfg.SendLatency)
	mailer = activities.NewRetryingMailer(mailer, activities.RetryPolicy{
		Timeout:        cfg.SendTimeout,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		MaxAttempts:    cfg.MaxAttempts,
	}, logger)
	if cfg.SanitizeHTML {
		mailer = activities.NewSanitizingMailer(mailer)
	}
	return activities.NewGateway(mailer, logger)
}

func storeConfig(cfg config.StoreConfig) store.Config {
	return store.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		PingTimeout:     cfg.PingTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

func isTerminal(writer any) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}
