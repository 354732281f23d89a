// Package engine implements the goal and blocking policy engine: it owns the
// persisted blocking settings and the in-memory activity progress, decides
// whether navigation targets are blocked, and notifies subscribers on every
// state change.
package engine

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/geo"
)

// StrictLockDuration is how long goal-weakening settings stay locked after
// strict mode is activated.
const StrictLockDuration = 21 * 24 * time.Hour

const dateLayout = "2006-01-02"

// Status reason strings, chosen by a fixed precedence per tracking mode.
const (
	ReasonDisabled      = "blocking disabled"
	ReasonStepsAchieved = "step goal achieved"
	ReasonStepsPending  = "step goal not reached"
	ReasonGymAchieved   = "gym goal achieved"
	ReasonGymPending    = "gym goal not reached"
	ReasonBothAchieved  = "step and gym goals achieved"
	ReasonBothPending   = "step and gym goals not reached"
)

type subscription struct {
	id     int
	fn     func(domain.BlockingStatus)
	active atomic.Bool
}

// Engine is the single writer of the settings slot. All operations absorb
// internal errors (log-only) and fail open: no call panics or surfaces an
// error to UI-facing callers.
type Engine struct {
	mu       sync.Mutex
	store    domain.SlotStore
	logger   *zap.Logger
	settings domain.BlockingSettings
	progress domain.Progress

	subs   []*subscription
	nextID int

	steps domain.ActivitySource // optional, used by Reconcile

	enforceStrictLock bool
	now               func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStrictLockEnforcement toggles the strict-mode time lock globally.
// The reference behavior ships with enforcement on; turning it off accepts
// every settings mutation unconditionally.
func WithStrictLockEnforcement(on bool) Option {
	return func(e *Engine) { e.enforceStrictLock = on }
}

// WithActivitySource sets the step-count source consulted by Reconcile.
// Without one, Reconcile falls back to the persisted steps slot.
func WithActivitySource(src domain.ActivitySource) Option {
	return func(e *Engine) { e.steps = src }
}

// New constructs an engine, loading settings from the store. Corrupt or
// missing persisted settings fall back to defaults; that is never an error.
func New(store domain.SlotStore, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		logger:            logger,
		settings:          DefaultSettings(),
		enforceStrictLock: true,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	var loaded domain.BlockingSettings
	if err := store.Read(domain.SlotSettings, &loaded); err != nil {
		if !errors.Is(err, domain.ErrSlotNotFound) {
			logger.Warn("failed to load settings, using defaults", zap.Error(err))
		}
	} else {
		loaded.LocationGoal.Geofence.RadiusMeters = geo.ClampRadius(loaded.LocationGoal.Geofence.RadiusMeters)
		e.settings = loaded
	}

	return e
}

// DefaultSettings is the fallback configuration used when nothing valid is
// persisted.
func DefaultSettings() domain.BlockingSettings {
	return domain.BlockingSettings{
		Enabled:       false,
		TrackingMode:  domain.TrackSteps,
		DailyStepGoal: 10000,
		LocationGoal: domain.GoalConfig{
			RequiredMinutes: 30,
			Geofence:        domain.Geofence{RadiusMeters: geo.DefaultRadiusMeters},
		},
		BlockedApps:     []string{},
		BlockedWebsites: []string{},
		AllowedDomains:  []string{},
		BlockingMessage: "Reach your daily activity goal to unlock this site.",
	}
}

// Settings returns a defensive copy; callers cannot mutate engine state
// through it.
func (e *Engine) Settings() domain.BlockingSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copySettings(e.settings)
}

// UpdateSettings merges the patch into current settings, persists and
// notifies. While the strict-mode lock is active, goal-weakening fields
// (strict mode off, step goal, gym goal minutes) are rejected log-only;
// everything else in the patch still applies.
func (e *Engine) UpdateSettings(patch domain.SettingsPatch) {
	e.mu.Lock()

	locked := e.enforceStrictLock && e.strictLockActiveLocked()

	if patch.Enabled != nil {
		e.settings.Enabled = *patch.Enabled
	}
	if patch.StrictMode != nil {
		switch {
		case !*patch.StrictMode && e.settings.StrictMode && locked:
			e.logger.Info("strict mode is locked, ignoring disable request",
				zap.Duration("remaining", e.strictLockRemainingLocked()))
		case *patch.StrictMode && !e.settings.StrictMode:
			now := e.now()
			e.settings.StrictMode = true
			e.settings.StrictModeActivatedAt = &now
		case !*patch.StrictMode && e.settings.StrictMode:
			e.settings.StrictMode = false
			e.settings.StrictModeActivatedAt = nil
		}
	}
	if patch.TrackingMode != nil {
		e.settings.TrackingMode = *patch.TrackingMode
	}
	if patch.DailyStepGoal != nil {
		if locked {
			e.logger.Info("strict mode is locked, ignoring step goal change")
		} else if *patch.DailyStepGoal > 0 {
			e.settings.DailyStepGoal = *patch.DailyStepGoal
		} else {
			e.logger.Warn("ignoring non-positive step goal", zap.Int("value", *patch.DailyStepGoal))
		}
	}
	if patch.LocationGoalMinutes != nil {
		if locked {
			e.logger.Info("strict mode is locked, ignoring gym goal change")
		} else if *patch.LocationGoalMinutes > 0 {
			e.settings.LocationGoal.RequiredMinutes = *patch.LocationGoalMinutes
		} else {
			e.logger.Warn("ignoring non-positive gym goal", zap.Float64("value", *patch.LocationGoalMinutes))
		}
	}
	if patch.LocationGoalGeofence != nil {
		fence := *patch.LocationGoalGeofence
		fence.RadiusMeters = geo.ClampRadius(fence.RadiusMeters)
		e.settings.LocationGoal.Geofence = fence
	}
	if patch.BlockedApps != nil {
		e.settings.BlockedApps = append([]string(nil), (*patch.BlockedApps)...)
	}
	if patch.BlockedWebsites != nil {
		e.settings.BlockedWebsites = append([]string(nil), (*patch.BlockedWebsites)...)
	}
	if patch.AllowedDomains != nil {
		e.settings.AllowedDomains = append([]string(nil), (*patch.AllowedDomains)...)
	}
	if patch.BlockingMessage != nil {
		e.settings.BlockingMessage = *patch.BlockingMessage
	}

	if err := e.store.Write(domain.SlotSettings, e.settings); err != nil {
		e.logger.Warn("failed to persist settings", zap.Error(err))
	}

	status, subs := e.snapshotLocked()
	e.mu.Unlock()
	deliver(status, subs)
}

// UpdateStepCount overwrites the current step count. Values lower than the
// previous one are accepted (day rollover); negative values clamp to zero.
func (e *Engine) UpdateStepCount(steps int) {
	if steps < 0 {
		e.logger.Warn("negative step count clamped to zero", zap.Int("steps", steps))
		steps = 0
	}
	e.mu.Lock()
	e.progress.CurrentSteps = steps
	status, subs := e.snapshotLocked()
	e.mu.Unlock()
	deliver(status, subs)
}

// UpdateGymTime overwrites the current gym minutes. Non-monotonic updates are
// accepted; negative values clamp to zero.
func (e *Engine) UpdateGymTime(minutes float64) {
	if minutes < 0 {
		e.logger.Warn("negative gym minutes clamped to zero", zap.Float64("minutes", minutes))
		minutes = 0
	}
	e.mu.Lock()
	e.progress.CurrentGymMinutes = minutes
	status, subs := e.snapshotLocked()
	e.mu.Unlock()
	deliver(status, subs)
}

// ShouldBlock decides whether a navigation target is suppressed. Fail open:
// disabled blocking, achieved goals, allow-listed hosts and unparseable URLs
// all return false.
func (e *Engine) ShouldBlock(rawURL string) bool {
	e.mu.Lock()
	settings := e.settings
	achieved := e.goalsAchievedLocked()
	e.mu.Unlock()

	if !settings.Enabled || achieved {
		return false
	}

	host := hostname(rawURL)
	if host == "" {
		return false
	}

	for _, allowed := range settings.AllowedDomains {
		if a := strings.ToLower(strings.TrimSpace(allowed)); a != "" && strings.Contains(host, a) {
			return false
		}
	}

	for _, pattern := range settings.BlockedWebsites {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		// Bidirectional containment: an overly broad pattern blocks too.
		if strings.Contains(host, p) || strings.Contains(p, host) {
			return true
		}
	}

	return false
}

// ShouldBlockApp applies the same goal gating to an application label.
func (e *Engine) ShouldBlockApp(label string) bool {
	e.mu.Lock()
	settings := e.settings
	achieved := e.goalsAchievedLocked()
	e.mu.Unlock()

	if !settings.Enabled || achieved {
		return false
	}

	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return false
	}
	for _, app := range settings.BlockedApps {
		a := strings.ToLower(strings.TrimSpace(app))
		if a == "" {
			continue
		}
		if strings.Contains(l, a) || strings.Contains(a, l) {
			return true
		}
	}
	return false
}

// Status computes a fresh snapshot from a single consistent settings+progress
// view; subscribers never observe a half-updated status.
func (e *Engine) Status() domain.BlockingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Subscribe registers a listener invoked synchronously with the latest status
// on every state-affecting call. The returned token is passed to Unsubscribe.
func (e *Engine) Subscribe(fn func(domain.BlockingStatus)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	sub := &subscription{id: e.nextID, fn: fn}
	sub.active.Store(true)
	e.subs = append(e.subs, sub)
	return sub.id
}

// Unsubscribe removes a listener. No delivery happens after it returns, even
// for notifications already in flight.
func (e *Engine) Unsubscribe(token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subs {
		if sub.id == token {
			sub.active.Store(false)
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Reconcile re-reads externally persisted progress (activity source or the
// steps slot, plus the gym-minutes slot) and applies it through the regular
// update path, bounding drift between collaborators and the engine.
func (e *Engine) Reconcile() {
	today := e.now().Format(dateLayout)

	if e.steps != nil {
		if steps, err := e.steps.CurrentSteps(); err != nil {
			e.logger.Warn("activity source read failed", zap.Error(err))
		} else {
			e.UpdateStepCount(steps)
		}
	} else {
		var daily domain.DailySteps
		if err := e.store.Read(domain.SlotSteps, &daily); err != nil {
			if !errors.Is(err, domain.ErrSlotNotFound) {
				e.logger.Warn("failed to read steps slot", zap.Error(err))
			}
		} else if daily.Date == today {
			e.UpdateStepCount(daily.Steps)
		} else {
			e.UpdateStepCount(0)
		}
	}

	var gym domain.DailyMinutes
	if err := e.store.Read(domain.SlotGymMinutes, &gym); err != nil {
		if !errors.Is(err, domain.ErrSlotNotFound) {
			e.logger.Warn("failed to read gym minutes slot", zap.Error(err))
		}
	} else if gym.Date == today {
		e.UpdateGymTime(gym.Minutes)
	} else {
		e.UpdateGymTime(0)
	}
}

// --- internals ---

func (e *Engine) stepGoalAchievedLocked() bool {
	return e.settings.DailyStepGoal > 0 && e.progress.CurrentSteps >= e.settings.DailyStepGoal
}

func (e *Engine) gymGoalAchievedLocked() bool {
	return e.settings.LocationGoal.RequiredMinutes > 0 &&
		e.progress.CurrentGymMinutes >= e.settings.LocationGoal.RequiredMinutes
}

func (e *Engine) goalsAchievedLocked() bool {
	switch e.settings.TrackingMode {
	case domain.TrackSteps:
		return e.stepGoalAchievedLocked()
	case domain.TrackLocation:
		return e.gymGoalAchievedLocked()
	default:
		return e.stepGoalAchievedLocked() && e.gymGoalAchievedLocked()
	}
}

func (e *Engine) strictLockActiveLocked() bool {
	return e.strictLockRemainingLocked() > 0
}

func (e *Engine) strictLockRemainingLocked() time.Duration {
	if !e.settings.StrictMode || e.settings.StrictModeActivatedAt == nil {
		return 0
	}
	remaining := StrictLockDuration - e.now().Sub(*e.settings.StrictModeActivatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (e *Engine) statusLocked() domain.BlockingStatus {
	stepOK := e.stepGoalAchievedLocked()
	gymOK := e.gymGoalAchievedLocked()
	achieved := e.goalsAchievedLocked()

	st := domain.BlockingStatus{
		Enabled:             e.settings.Enabled,
		IsBlocked:           e.settings.Enabled && !achieved,
		TrackingMode:        e.settings.TrackingMode,
		CurrentSteps:        e.progress.CurrentSteps,
		DailyStepGoal:       e.settings.DailyStepGoal,
		CurrentGymMinutes:   e.progress.CurrentGymMinutes,
		GymGoalMinutes:      e.settings.LocationGoal.RequiredMinutes,
		StepGoalAchieved:    stepOK,
		GymGoalAchieved:     gymOK,
		GoalsAchieved:       achieved,
		StrictMode:          e.settings.StrictMode,
		StrictLockRemaining: e.strictLockRemainingLocked(),
		BlockingMessage:     e.settings.BlockingMessage,
	}

	if rem := e.settings.DailyStepGoal - e.progress.CurrentSteps; rem > 0 {
		st.RemainingSteps = rem
	}
	if rem := e.settings.LocationGoal.RequiredMinutes - e.progress.CurrentGymMinutes; rem > 0 {
		st.RemainingGymMinutes = rem
	}

	st.Reason = reason(e.settings.Enabled, e.settings.TrackingMode, stepOK, gymOK)
	return st
}

// reason picks the human-readable status line: both achieved > neither
// achieved > step-only pending > gym-only pending, scoped to the active mode.
func reason(enabled bool, mode domain.TrackingMode, stepOK, gymOK bool) string {
	if !enabled {
		return ReasonDisabled
	}
	switch mode {
	case domain.TrackSteps:
		if stepOK {
			return ReasonStepsAchieved
		}
		return ReasonStepsPending
	case domain.TrackLocation:
		if gymOK {
			return ReasonGymAchieved
		}
		return ReasonGymPending
	default:
		switch {
		case stepOK && gymOK:
			return ReasonBothAchieved
		case !stepOK && !gymOK:
			return ReasonBothPending
		case !stepOK:
			return ReasonStepsPending
		default:
			return ReasonGymPending
		}
	}
}

// snapshotLocked builds the status and the active subscriber list while the
// lock is held; delivery happens after unlock so callbacks can re-enter.
func (e *Engine) snapshotLocked() (domain.BlockingStatus, []*subscription) {
	subs := make([]*subscription, len(e.subs))
	copy(subs, e.subs)
	return e.statusLocked(), subs
}

func deliver(status domain.BlockingStatus, subs []*subscription) {
	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(status)
		}
	}
}

// hostname extracts the lower-cased host from a URL, dropping the scheme and
// a leading "www.". Returns "" when no host can be determined (fail open).
func hostname(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		// Scheme-less input like "facebook.com/feed": retry with a scheme.
		if strings.Contains(raw, "://") {
			return ""
		}
		u, err = url.Parse("https://" + raw)
		if err != nil || u.Hostname() == "" {
			return ""
		}
	}

	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func copySettings(s domain.BlockingSettings) domain.BlockingSettings {
	out := s
	out.BlockedApps = append([]string(nil), s.BlockedApps...)
	out.BlockedWebsites = append([]string(nil), s.BlockedWebsites...)
	out.AllowedDomains = append([]string(nil), s.AllowedDomains...)
	if s.StrictModeActivatedAt != nil {
		t := *s.StrictModeActivatedAt
		out.StrictModeActivatedAt = &t
	}
	return out
}
