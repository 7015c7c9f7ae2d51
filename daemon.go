package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/actiond/internal/api"
	"github.com/smazurov/actiond/internal/catalog"
	"github.com/smazurov/actiond/internal/config"
	"github.com/smazurov/actiond/internal/events"
	"github.com/smazurov/actiond/internal/logging"
	"github.com/smazurov/actiond/internal/metrics"
	"github.com/smazurov/actiond/internal/sandbox"
	"github.com/smazurov/actiond/internal/supervisor"
	"github.com/smazurov/actiond/internal/systemd"
)

// daemon wires discovery, the supervisor and its optional surfaces together.
type daemon struct {
	logger   *slog.Logger
	bus      *events.Bus
	sup      *supervisor.Supervisor
	watcher  *config.Watcher[map[string]any]
	server   *api.Server
	apiAddr  string
	notifier *systemd.Notifier

	// states is only touched from the supervisor goroutine.
	states map[string]supervisor.State
}

// newDaemon validates opts and builds every component. It returns an error for
// anything that must abort startup: a bad actions root, an unreadable or
// malformed configuration file, or invalid runner settings.
func newDaemon(opts *Options) (*daemon, error) {
	logger := logging.GetLogger("main")

	if err := catalog.ValidateRoot(opts.ActionsRoot); err != nil {
		return nil, err
	}

	var payload map[string]any
	if opts.Config != "" {
		p, err := config.LoadPayload(opts.Config)
		if err != nil {
			return nil, err
		}
		payload = p
	}

	attributor, ok := supervisor.NewAttributor(opts.Attribution)
	if !ok {
		return nil, fmt.Errorf("unknown attribution strategy %q", opts.Attribution)
	}

	graceful, err := time.ParseDuration(opts.GracefulTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid graceful timeout: %w", err)
	}

	runner, err := sandbox.NewProcessRunner(sandbox.ProcessOptions{
		Interpreter:     opts.Interpreter,
		GracefulTimeout: graceful,
		TailLines:       opts.TailLines,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid interpreter: %w", err)
	}

	result, err := catalog.Discover(opts.ActionsRoot, catalog.Options{
		ManifestFile: opts.ManifestFile,
		Toolkit:      opts.Toolkit,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Discovery finished", "root", opts.ActionsRoot, "actions", result.Catalog.Len(), "errors", len(result.Errors))

	d := &daemon{
		logger:   logger,
		bus:      events.New(),
		apiAddr:  opts.APIAddr,
		notifier: systemd.NewNotifier(logger),
		states:   make(map[string]supervisor.State, result.Catalog.Len()),
	}
	for _, a := range result.Catalog.Actions() {
		d.states[a.Name] = supervisor.StatePending
	}

	d.sup, err = supervisor.New(&supervisor.Options{
		Catalog:       result.Catalog,
		Runner:        runner,
		Attributor:    attributor,
		Payload:       payload,
		EventBus:      d.bus,
		OnStateChange: d.onStateChange,
	})
	if err != nil {
		return nil, err
	}

	if opts.Config != "" && opts.WatchConfig {
		d.watcher = config.NewConfigWatcher(opts.Config, config.LoadPayload, logging.GetLogger("config"),
			config.WithErrorHandler[map[string]any](func(err error) {
				logger.Error("Ignoring invalid configuration change", "path", opts.Config, "error", err)
			}))
		d.watcher.OnReload(d.onPayloadReload)
	}

	if opts.APIAddr != "" {
		d.server = api.NewServer(&api.Options{
			Supervisor:        d.sup,
			EventBus:          d.bus,
			PrometheusHandler: metrics.Handler(),
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
		})
	}

	return d, nil
}

// Run supervises until ctx is cancelled, then tears everything down.
func (d *daemon) Run(ctx context.Context) error {
	detachMetrics := metrics.Attach(d.bus)
	defer detachMetrics()

	logging.SetLogCallback(d.publishLog)
	defer logging.SetLogCallback(nil)

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.logger.Warn("Configuration changes will not be picked up", "error", err)
		} else {
			defer func() {
				if err := d.watcher.Stop(); err != nil {
					d.logger.Warn("Failed to stop configuration watcher", "error", err)
				}
			}()
		}
	}

	if d.server != nil {
		go func() {
			if err := d.server.Start(d.apiAddr); err != nil {
				d.logger.Error("API server failed", "addr", d.apiAddr, "error", err)
			}
		}()
		defer func() {
			if err := d.server.Stop(); err != nil {
				d.logger.Warn("Error stopping API server", "error", err)
			}
		}()
	}

	go d.notifier.Watchdog(ctx)

	runErr := make(chan error, 1)
	go func() { runErr <- d.sup.Run(ctx) }()
	d.notifier.Ready()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
	}
	d.notifier.Stopping()
	return <-runErr
}

func (d *daemon) onStateChange(name string, _, to supervisor.State, _ error) {
	d.states[name] = to

	running := 0
	for _, state := range d.states {
		if state == supervisor.StateRunning {
			running++
		}
	}
	d.notifier.Status("%d of %d actions running", running, len(d.states))
}

func (d *daemon) onPayloadReload(payload map[string]any) {
	d.sup.SetPayload(payload)
	d.logger.Info("Configuration reloaded, applies to next launches", "path", d.watcher.Path(), "keys", len(payload))
	events.Publish(d.bus, events.PayloadReloadedEvent{
		Path:      d.watcher.Path(),
		Keys:      len(payload),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (d *daemon) publishLog(entry logging.LogEntry) {
	events.Publish(d.bus, events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	})
}
