// Package core is voxnote's composition root. It constructs the scheduler,
// monitor, store, and transcription client once per process and hands the
// shared instances to the collaborators that need them; nothing else in the
// repo reaches for a global.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"voxnote/internal/config"
	"voxnote/internal/eventbus"
	"voxnote/internal/monitor"
	"voxnote/internal/notestore"
	"voxnote/internal/observability/debug"
	"voxnote/internal/resource"
	"voxnote/internal/runtime/supervisor"
	"voxnote/internal/scheduler"
	"voxnote/internal/transcribe"
	logx "voxnote/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	sched *scheduler.Scheduler
	mon   *monitor.Monitor
	store *notestore.Store
	tsc   *transcribe.Client
	dbg   *debug.Service

	sup   *supervisor.Supervisor
	cfgCh chan *config.Config
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
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
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()
	sched := scheduler.New(log.With(logx.String("comp", "scheduler")))

	monCfg, err := mapMonitorConfig(cfg.Monitor)
	if err != nil {
		return nil, err
	}
	mon := monitor.New(monCfg, sched, resource.New(sched, bus), log.With(logx.String("comp", "monitor")))
	dbg := debug.New(mapDebugConfig(cfg.Debug), mon, sched, log.With(logx.String("comp", "debug")))

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = "./voxnote.db"
	}
	busyTimeout, err := config.ParseDurationOrDefault("store.busy_timeout", cfg.Store.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := notestore.Open(notestore.Config{Path: storePath, BusyTimeout: busyTimeout}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open note store: %w", err)
	}

	var tsc *transcribe.Client
	if cfg.Transcribe.BaseURL != "" {
		timeout, err := config.ParseDurationOrDefault("transcribe.timeout", cfg.Transcribe.Timeout, 30*time.Second)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		tsc, err = transcribe.New(transcribe.Config{
			BaseURL: cfg.Transcribe.BaseURL,
			APIKey:  cfg.Transcribe.APIKey,
			Timeout: timeout,
		}, log.With(logx.String("comp", "transcribe")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		sched:   sched,
		mon:     mon,
		store:   store,
		tsc:     tsc,
		dbg:     dbg,
	}, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Monitor() *monitor.Monitor       { return a.mon }
func (a *App) Store() *notestore.Store         { return a.store }
func (a *App) Bus() eventbus.Bus               { return a.bus }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	// Config hot reload: watcher goroutine plus a subscriber that re-applies
	// logging, monitor, and debug settings. Both run under the supervisor so
	// a panicking reload can't take the daemon down silently.
	a.sup = supervisor.New(context.Background(), a.log)
	a.cfgCh = a.cfgm.Subscribe(1)

	a.sup.Go("config.watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})
	a.sup.Go("config.apply", func(ctx context.Context) error {
		for next := range a.cfgCh {
			a.applyConfig(next)
		}
		return nil
	})

	a.mon.StartMonitoring()
	a.dbg.Start(a.sup.Context())

	// Autosave: flush staged notes on a fixed period, measured as a store
	// operation.
	autosave, err := config.ParseDurationOrDefault("store.autosave_interval", cfg.Store.AutosaveInterval, 30*time.Second)
	if err != nil {
		return err
	}
	a.sched.CreateRecurringTask("notes:autosave", autosave, func(ctx context.Context) error {
		if a.store.Pending() == 0 {
			return nil
		}
		return a.mon.Measure(monitor.FieldStore, "notes:autosave", func() error {
			_, err := a.store.Flush(ctx)
			return err
		})
	}, scheduler.RecurringOptions{})

	// Retention: cron-driven purge of stale notes.
	if cfg.Store.RetentionDays > 0 {
		spec := cfg.Store.RetentionSchedule
		if spec == "" {
			spec = "@daily"
		}
		days := cfg.Store.RetentionDays
		if _, err := a.sched.CreateCronTask("notes:retention", spec, func(ctx context.Context) error {
			_, err := a.store.PurgeOlderThan(ctx, days)
			return err
		}); err != nil {
			return fmt.Errorf("retention schedule: %w", err)
		}
	}

	a.log.Info("voxnote started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
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
	monCfg, err := mapMonitorConfig(cfg.Monitor)
	if err != nil {
		a.log.Warn("monitor config rejected", logx.Err(err))
		return
	}
	a.mon.Apply(monCfg)
	a.dbg.Reconfigure(context.Background(), mapDebugConfig(cfg.Debug))
	a.log.Info("config applied")
}

// SubmitRecording stages a note for autosave and, when a transcription
// client is configured, schedules a bounded retry task that submits the
// audio and attaches the transcript on success.
func (a *App) SubmitRecording(title string, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty recording")
	}
	noteID := a.store.Stage(notestore.Note{Title: title})
	a.bus.Publish(eventbus.Event{Type: "note.captured", Data: noteID})

	if a.tsc == nil {
		return noteID, nil
	}

	cfg := a.cfgm.Get()
	period, err := config.ParseDurationOrDefault("transcribe.retry_period", cfg.Transcribe.RetryPeriod, 10*time.Second)
	if err != nil {
		return "", err
	}
	maxRetries := cfg.Transcribe.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	a.sched.CreateRetryTask("transcribe:"+noteID, func(ctx context.Context) error {
		text, err := monitor.MeasureValue(a.mon, monitor.FieldAPIResponse, "transcribe:"+noteID, func() (string, error) {
			return a.tsc.Transcribe(ctx, audio, mimeType)
		})
		if err != nil {
			return err
		}
		note, err := a.store.Get(ctx, noteID)
		if errors.Is(err, notestore.ErrNotFound) {
			// Not flushed yet; restage with the transcript attached.
			note = notestore.Note{ID: noteID, Title: title}
		} else if err != nil {
			return err
		}
		note.Transcript = text
		a.store.Stage(note)
		a.bus.Publish(eventbus.Event{Type: "note.transcribed", Data: noteID})
		return nil
	}, scheduler.RetryOptions{
		Period:     period,
		MaxRetries: maxRetries,
		Immediate:  true,
		OnFailure: func(err error) {
			a.log.Warn("transcription abandoned", logx.String("note", noteID), logx.Err(err))
		},
	})
	return noteID, nil
}

// ExportAfter schedules a one-shot export of all notes to path.
func (a *App) ExportAfter(delay time.Duration, path string) scheduler.TimerID {
	return a.sched.CreateDelayedTask("notes:export", delay, func(ctx context.Context) error {
		return a.mon.Measure(monitor.FieldExport, "notes:export", func() error {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			n, err := a.store.ExportJSON(ctx, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err == nil {
				a.bus.Publish(eventbus.Event{Type: "note.exported", Data: n})
			}
			return err
		})
	})
}

func (a *App) Stop(ctx context.Context) error {
	a.dbg.Stop(ctx)
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	if a.sup != nil {
		supCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.sup.Stop(supCtx); err != nil {
			a.log.Warn("background loops stopped uncleanly", logx.Err(err))
		}
		cancel()
	}

	// Monitoring first (its sampling task lives in the scheduler), then the
	// scheduler itself, then a final flush so staged notes survive shutdown.
	a.mon.Cleanup()
	a.sched.Close()

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := a.store.Flush(flushCtx); err != nil {
		a.log.Warn("final flush failed", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}

	a.log.Info("voxnote stopped")
	return a.logs.Close()
}

func mapDebugConfig(dc config.DebugConfig) debug.Config {
	return debug.Config{Enabled: dc.Enabled, Addr: dc.Addr, Token: dc.Token}
}

func mapMonitorConfig(mc config.MonitorConfig) (monitor.Config, error) {
	sample, err := config.ParseDurationField("monitor.sample_interval", mc.SampleInterval)
	if err != nil {
		return monitor.Config{}, err
	}

	th := monitor.DefaultThresholds()
	if mc.MemoryThresholdMB > 0 {
		th.MemoryMB = mc.MemoryThresholdMB
	}
	if mc.TimerThreshold > 0 {
		th.Timers = mc.TimerThreshold
	}
	if mc.ListenerThreshold > 0 {
		th.Listeners = mc.ListenerThreshold
	}
	for field, raw := range mc.LatencyThresholds {
		d, err := config.ParseDurationField("monitor.latency_thresholds."+field, raw)
		if err != nil {
			return monitor.Config{}, err
		}
		th.Latency[field] = d
	}

	return monitor.Config{
		SampleInterval:       sample,
		HistorySize:          mc.HistorySize,
		AlertHistorySize:     mc.AlertHistorySize,
		OperationHistorySize: mc.OperationHistorySize,
		AlertLogPerSec:       mc.AlertLogPerSec,
		Thresholds:           th,
	}, nil
}
