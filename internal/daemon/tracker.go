// Package daemon implements the tracker daemon: the long-running loop that
// feeds the session detector from the location provider, reconciles the
// engine with persisted progress, and keeps the interception layer in sync
// with the attached browser process.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/detector"
	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/engine"
	"github.com/stridegate/stridegate/internal/nav"
)

// TrackerConfig holds tracker daemon configuration.
type TrackerConfig struct {
	ReconcileInterval    time.Duration // how often to re-read persisted progress
	ProcessCheckInterval time.Duration // how often to check the browser process
	WatchRetryInterval   time.Duration // how long to wait before restarting a failed location watch
	BrowserPattern       string        // process name pattern of the attached browser
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ReconcileInterval:    5 * time.Minute,
		ProcessCheckInterval: 30 * time.Second,
		WatchRetryInterval:   time.Minute,
		BrowserPattern:       "",
	}
}

// Tracker wires the collaborators together and runs them on tickers.
// All failures degrade to no-op plus log; the loop itself only exits on
// context cancellation.
type Tracker struct {
	config      TrackerConfig
	engine      *engine.Engine
	detector    *detector.Detector
	location    domain.LocationProvider
	processes   domain.ProcessWatcher
	interceptor *nav.Interceptor
	logger      *zap.Logger

	mu            sync.Mutex
	lastSensorErr error
}

// NewTracker creates a tracker daemon. processes and interceptor may be nil
// when no browser is attached.
func NewTracker(
	config TrackerConfig,
	eng *engine.Engine,
	det *detector.Detector,
	location domain.LocationProvider,
	processes domain.ProcessWatcher,
	interceptor *nav.Interceptor,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		config:      config,
		engine:      eng,
		detector:    det,
		location:    location,
		processes:   processes,
		interceptor: interceptor,
		logger:      logger,
	}
}

// Run starts the tracker loop. Blocks until ctx is canceled; cancellation
// releases the location watch and all tickers so no further callbacks fire.
func (t *Tracker) Run(ctx context.Context) error {
	// Detector events drive the engine's gym-time view: departures carry the
	// committed total, in-progress events the live total.
	t.detector.Subscribe(func(ev domain.GymEvent) {
		switch ev.Kind {
		case domain.GymDeparture, domain.GymInProgress:
			t.engine.UpdateGymTime(ev.TotalMinutes)
		}
	})

	// Catch up with anything collaborators persisted while we were down.
	t.engine.Reconcile()

	if t.interceptor != nil {
		t.interceptor.Start(ctx)
		defer t.interceptor.Teardown()
	}

	if t.location != nil {
		go t.watchLocation(ctx)
	}

	t.logger.Info("tracker daemon started",
		zap.Duration("reconcile_interval", t.config.ReconcileInterval))

	reconcileTicker := time.NewTicker(t.config.ReconcileInterval)
	processTicker := time.NewTicker(t.config.ProcessCheckInterval)

	defer func() {
		reconcileTicker.Stop()
		processTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker daemon stopping")
			return ctx.Err()

		case <-reconcileTicker.C:
			t.engine.Reconcile()

		case <-processTicker.C:
			t.checkProcesses()
		}
	}
}

// LastSensorError returns the most recent geolocation failure, or nil.
// Retryable: the watch restarts on its own after WatchRetryInterval.
func (t *Tracker) LastSensorError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSensorErr
}

// watchLocation runs the location watch, restarting it after failures.
// A failed watch leaves the detector without samples until the restart,
// never crashed.
func (t *Tracker) watchLocation(ctx context.Context) {
	for {
		err := t.location.Watch(ctx, t.handleSample, t.recordSensorError)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.recordSensorError(err)
			t.logger.Warn("location watch failed, restarting",
				zap.Error(err),
				zap.Duration("retry_in", t.config.WatchRetryInterval))
		} else {
			t.logger.Info("location watch ended")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.config.WatchRetryInterval):
		}
	}
}

func (t *Tracker) handleSample(s domain.LocationSample) {
	t.mu.Lock()
	t.lastSensorErr = nil
	t.mu.Unlock()
	t.detector.ProcessSample(s)
}

func (t *Tracker) recordSensorError(err error) {
	t.mu.Lock()
	t.lastSensorErr = err
	t.mu.Unlock()
	t.logger.Warn("sensor error", zap.Error(err))
}

// checkProcesses pauses the interception hooks while the attached browser is
// gone and reports running processes matching blocked-app labels.
func (t *Tracker) checkProcesses() {
	if t.processes == nil {
		return
	}

	if t.config.BrowserPattern != "" && t.interceptor != nil {
		alive, err := t.processes.IsRunning(t.config.BrowserPattern)
		if err != nil {
			t.logger.Warn("browser process check failed", zap.Error(err))
		} else {
			t.interceptor.SetPaused(!alive)
		}
	}

	labels := t.engine.Settings().BlockedApps
	if len(labels) == 0 {
		return
	}
	matches, err := t.processes.MatchingProcesses(labels)
	if err != nil {
		t.logger.Warn("blocked app scan failed", zap.Error(err))
		return
	}
	for _, name := range matches {
		if t.engine.ShouldBlockApp(name) {
			t.logger.Info("blocked app is running", zap.String("process", name))
		}
	}
}
