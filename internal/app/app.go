// Package app wires configuration, storage, the Telegram surface and the
// broadcast engine into one start/stoppable unit.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/config"
	"kinobot/internal/gate"
	"kinobot/internal/storage"
	"kinobot/internal/telegram"
	"kinobot/pkg/logx"
)

type App struct {
	cfgm      *config.Manager
	log       logx.Logger
	closeLogs func() error

	store   *storage.Store
	adapter *telegram.Adapter
	auth    *access.Authority
	engine  *broadcast.Engine

	cron *cron.Cron

	cancelBg context.CancelFunc
	reloads  chan *config.Config
	wg       sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log, closeLogs, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: config.ParseDuration(cfg.Storage.BusyTimeout, 5*time.Second),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = closeLogs()
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.ParseDuration(cfg.Telegram.PollTimeout, 10*time.Second),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = closeLogs()
		return nil, err
	}

	auth := access.NewAuthority(cfg.Telegram.OwnerIDs, store, log.With(logx.String("comp", "access")))
	gatekeeper := gate.NewEvaluator(store, adapter, adapter, log.With(logx.String("comp", "gate")))
	engine := broadcast.NewEngine(broadcastConfig(cfg), store, adapter, store, log.With(logx.String("comp", "broadcast")))

	handlers := telegram.NewHandlers(adapter, store, auth, gatekeeper, engine, cfg.Telegram.ContactLink, log.With(logx.String("comp", "handlers")))
	handlers.Register()

	return &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		closeLogs: closeLogs,
		store:     store,
		adapter:   adapter,
		auth:      auth,
		engine:    engine,
		cron:      cron.New(),
	}, nil
}

// Start launches the poller, the config watcher and the ledger prune job.
// Non-blocking; Stop tears everything down.
func (a *App) Start(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	a.cancelBg = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(bg); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	a.reloads = a.cfgm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for cfg := range a.reloads {
			a.applyConfig(cfg)
		}
	}()

	if err := a.schedulePrune(a.cfgm.Get()); err != nil {
		return err
	}
	a.cron.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.adapter.Start()
	}()

	a.log.Info("started")
	return nil
}

// Stop shuts the app down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	a.adapter.Stop()
	if a.cancelBg != nil {
		a.cancelBg()
	}
	if a.reloads != nil {
		a.cfgm.Unsubscribe(a.reloads)
	}

	cronDone := a.cron.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown timed out waiting for background loops")
	}

	err := a.store.Close()
	a.log.Info("stopped")
	if a.closeLogs != nil {
		_ = a.closeLogs()
	}
	return err
}

// applyConfig pushes the hot-reloadable pieces into the running services.
// Token, storage path and logging sinks require a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.engine.Apply(broadcastConfig(cfg))
	a.auth.SetOwners(cfg.Telegram.OwnerIDs)
	a.log.Info("reloaded tuning",
		logx.Int("workers", cfg.Broadcast.Workers),
		logx.Int("rate_per_sec", cfg.Broadcast.RatePerSec),
		logx.Int("owners", len(cfg.Telegram.OwnerIDs)))
}

func (a *App) schedulePrune(cfg *config.Config) error {
	spec := config.DefaultPruneSpec
	days := config.DefaultRetentionDays
	if cfg != nil {
		if cfg.Ledger.PruneSpec != "" {
			spec = cfg.Ledger.PruneSpec
		}
		if cfg.Ledger.RetentionDays > 0 {
			days = cfg.Ledger.RetentionDays
		}
	}
	_, err := a.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := a.store.PruneJobs(ctx, cutoff)
		if err != nil {
			a.log.Warn("ledger prune failed", logx.Err(err))
			return
		}
		if n > 0 {
			a.log.Info("ledger pruned", logx.Int64("removed", n))
		}
	})
	return err
}

func broadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
		RetryDelay: config.ParseDuration(cfg.Broadcast.RetryDelay, 0),
	}
}
