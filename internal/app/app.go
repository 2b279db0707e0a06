// Package app wires the engine together: config, logging, storage, the
// quota governor, the session store, the dispatcher, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailblast/internal/accounts"
	"mailblast/internal/alerts"
	"mailblast/internal/config"
	"mailblast/internal/dispatch"
	"mailblast/internal/mail"
	"mailblast/internal/quota"
	"mailblast/internal/runtime/supervisor"
	"mailblast/internal/server"
	"mailblast/internal/session"
	"mailblast/internal/storage"
	logx "mailblast/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store     storage.Store
	registry  *accounts.Registry
	gov       *quota.Governor
	sessions  *session.Store
	janitor   *session.Janitor
	transport mail.Transport
	preflight *mail.Preflight
	alerts    *alerts.Service

	mailer     mailerSettings
	dispatcher *dispatch.Service
	http       *server.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
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

	ms, err := mapMailerConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	registry := accounts.NewRegistry(mapAccounts(cfg))
	if registry.Len() == 0 {
		log.Warn("no usable accounts configured; campaign starts will be rejected")
	}

	govOpts := []quota.Option{quota.WithLocation(ms.Location)}
	if store != nil {
		govOpts = append(govOpts, quota.WithPersister(store))
	}
	gov := quota.New(ms.DailyLimit, log.With(logx.String("comp", "quota")), govOpts...)

	sessCfg, schedule, err := mapSessionsConfig(cfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewStore(sessCfg, log.With(logx.String("comp", "sessions")))

	var arch session.Archiver
	if store != nil {
		arch = store
	}
	janitor := session.NewJanitor(sessions, arch, schedule, log.With(logx.String("comp", "janitor")))

	transport, err := buildTransport(ms.Transport, log)
	if err != nil {
		return nil, err
	}
	pf := mail.NewPreflight(transport, ms.PreflightTimeout, log.With(logx.String("comp", "preflight")))

	alertSvc := alerts.New(mapAlertsConfig(cfg), log.With(logx.String("comp", "alerts")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		store:     store,
		registry:  registry,
		gov:       gov,
		sessions:  sessions,
		janitor:   janitor,
		transport: transport,
		preflight: pf,
		alerts:    alertSvc,
		mailer:    ms,
	}, nil
}

func buildTransport(name string, log logx.Logger) (mail.Transport, error) {
	switch name {
	case "log", "":
		return mail.NewLogTransport(log.With(logx.String("comp", "transport"))), nil
	default:
		return nil, fmt.Errorf("unknown mailer.transport %q", name)
	}
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.dispatcher = dispatch.New(a.sessions, a.gov, a.transport, a.sup,
		a.log.With(logx.String("comp", "dispatch")),
		dispatch.Options{
			Interval:       a.mailer.Interval,
			UnsubscribeURL: a.mailer.UnsubscribeURL,
			OnTerminal:     func(s session.Session) { a.alerts.Notify(s) },
		})

	srvCfg, err := mapServerConfig(a.cfgm.Get(), a.mailer.Cap)
	if err != nil {
		return err
	}
	a.http = server.New(srvCfg, server.Deps{
		Registry:   a.registry,
		Quota:      a.gov,
		Sessions:   a.sessions,
		Dispatcher: a.dispatcher,
		Preflight:  a.preflight,
	}, a.log.With(logx.String("comp", "http")))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapMailerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapServerConfig(cfg, 1); err != nil {
			return err
		}
		if _, _, err := mapSessionsConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.http.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.janitor.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.alerts != nil {
		a.sup.Go("alerts.deliver", a.alerts.Run)
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies a validated reload. Quota limit, dispatch pacing,
// campaign cap, session retention, and logging apply live; accounts,
// storage, transport, timezone, and the listen address need a restart.
func (a *App) applyConfig(old, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	ms, err := mapMailerConfig(cfg)
	if err != nil {
		a.log.Warn("invalid mailer config; keeping previous", logx.Any("err", err))
	} else {
		a.gov.SetLimit(ms.DailyLimit)
		a.dispatcher.Apply(ms.Interval, ms.UnsubscribeURL)
		a.http.ApplyCap(ms.Cap)
		if ms.Transport != a.mailer.Transport {
			a.log.Warn("mailer.transport changed; restart required")
		}
		if ms.Location.String() != a.mailer.Location.String() {
			a.log.Warn("mailer.quota_timezone changed; restart required")
		}
	}

	if sc, schedule, err := mapSessionsConfig(cfg); err != nil {
		a.log.Warn("invalid sessions config; keeping previous", logx.Any("err", err))
	} else {
		a.sessions.Apply(sc)
		if old != nil && old.Sessions != nil && cfg.Sessions != nil &&
			schedule != "" && old.Sessions.SweepSchedule != cfg.Sessions.SweepSchedule {
			a.log.Warn("sessions.sweep_schedule changed; restart required")
		}
	}

	if old != nil {
		if !accountsEqual(old.Accounts, cfg.Accounts) {
			a.log.Warn("accounts changed; restart required")
		}
		if fmt.Sprint(old.Storage) != fmt.Sprint(cfg.Storage) {
			a.log.Warn("storage config changed; restart required")
		}
		if fmt.Sprint(old.Alerts) != fmt.Sprint(cfg.Alerts) {
			a.log.Warn("alerts config changed; restart required")
		}
		if old.Server != cfg.Server {
			a.log.Warn("server config changed; restart required")
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so dispatch loops start unwinding; each
	// one finalizes its session as cancelled on the way out.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Any("err", err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("http", 3*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("janitor", 2*time.Second, func(c context.Context) error { a.janitor.Stop(c); return nil })
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 2*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
