// Package app wires the process together: config, logging, storage, the
// Telegram adapter, the alert pipeline, the cron trigger, and the command
// router. It owns startup order, hot reload fan-out, and shutdown order.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"shelfbot/internal/alert"
	"shelfbot/internal/bot"
	"shelfbot/internal/config"
	"shelfbot/internal/schedule"
	"shelfbot/internal/storage"
	"shelfbot/internal/transport"
	"shelfbot/internal/transport/telegram"
	logx "shelfbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	adapter  *telegram.Adapter
	pipeline *alert.Pipeline
	sched    *schedule.Service
	router   *bot.Router

	updates chan transport.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	alertCfg, err := mapAlertConfig(cfg)
	if err != nil {
		return nil, err
	}
	pipeline := alert.NewPipeline(alertCfg, store, adapter, log.With(logx.String("comp", "alerts")))

	sched := schedule.New(schedule.Config{
		Spec:     cfg.Schedule.Spec,
		Timezone: cfg.Schedule.Timezone,
	}, func(ctx context.Context) {
		stats, err := pipeline.Run(ctx)
		if err != nil {
			log.Error("alert run failed", logx.Err(err))
			return
		}
		log.Info("alert run finished",
			logx.Int("shops", stats.Shops),
			logx.Int("alerted", stats.ShopsAlerted),
			logx.Int("failed", stats.ShopsFailed),
			logx.Int("sent", stats.AlertsSent))
	}, log.With(logx.String("comp", "schedule")))

	router := bot.NewRouter(store, pipeline, adapter, log.With(logx.String("comp", "commands")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  adapter,
		pipeline: pipeline,
		sched:    sched,
		router:   router,
		updates:  make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}
	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

// applyReload pushes a hot-reloaded config into the running components.
// Storage and the Telegram token cannot change without a restart; those
// sections only get a warning.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if alertCfg, err := mapAlertConfig(cfg); err != nil {
		a.log.Warn("invalid alert config; keeping previous", logx.Err(err))
	} else {
		a.pipeline.Apply(alertCfg)
	}

	a.sched.Apply(schedule.Config{
		Spec:     cfg.Schedule.Spec,
		Timezone: cfg.Schedule.Timezone,
	})

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Bound each shutdown step so one stuck component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	if a.cancel != nil {
		a.cancel()
	}
	step("goroutines", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// mapAlertConfig translates the file schema into the pipeline's config,
// overlaying the file's default settings onto the built-in ones.
func mapAlertConfig(cfg *config.Config) (alert.Config, error) {
	def := alert.DefaultSettings
	if v := cfg.Alerts.LowStockThreshold; v != nil && *v >= 0 {
		def.LowStockThreshold = *v
	}
	if v := cfg.Alerts.ExpiryWarningDays; v != nil && *v >= 0 {
		def.ExpiryWarningDays = *v
	}
	if v := cfg.Alerts.ExpiryAlerts; v != nil {
		def.ExpiryAlerts = *v
	}
	if v := cfg.Alerts.LowStockAlerts; v != nil {
		def.LowStockAlerts = *v
	}

	subDelay, err := config.ParseDurationField("alerts.subscriber_delay", cfg.Alerts.SubscriberDelay)
	if err != nil {
		return alert.Config{}, err
	}
	shopDelay, err := config.ParseDurationField("alerts.shop_delay", cfg.Alerts.ShopDelay)
	if err != nil {
		return alert.Config{}, err
	}

	var loc *time.Location
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return alert.Config{}, fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}

	return alert.Config{
		Defaults:        def,
		SubscriberDelay: subDelay,
		ShopDelay:       shopDelay,
		Location:        loc,
		DashboardURL:    cfg.Alerts.DashboardURL,
	}, nil
}

// validate rejects a config before it is committed, so a bad hot reload
// never reaches the running components.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := mapAlertConfig(cfg); err != nil {
		return err
	}
	if err := schedule.ValidateSpec(cfg.Schedule.Spec); err != nil {
		return err
	}
	return nil
}
