// Package detector converts a stream of noisy GPS fixes into discrete gym
// arrival/departure events and an accumulated minutes-at-location total.
package detector

import (
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/geo"
)

// historyCap bounds the rolling sample history kept for display-only
// distance-travelled and step estimation.
const historyCap = 100

// strideMeters is the assumed stride length for the step estimate.
const strideMeters = 0.75

const dateLayout = "2006-01-02"

// Detector is a two-state (Outside/Inside) machine for one fixed geofence.
// It accumulates committed minutes per calendar day and persists the total
// on every departure. An open session at teardown is discarded: only
// completed sessions count.
//
// Not safe for concurrent use; the tracker loop is the single caller.
type Detector struct {
	geofence domain.Geofence
	store    domain.SlotStore
	logger   *zap.Logger

	inside       bool
	sessionStart time.Time
	daily        domain.DailyMinutes

	history   []domain.LocationSample
	listeners []func(domain.GymEvent)
}

// New creates a detector for the given geofence, seeding the daily
// accumulator from the persisted gym-minutes slot. A corrupt or missing slot
// starts the day at zero.
func New(fence domain.Geofence, store domain.SlotStore, logger *zap.Logger) *Detector {
	fence.RadiusMeters = geo.ClampRadius(fence.RadiusMeters)

	d := &Detector{
		geofence: fence,
		store:    store,
		logger:   logger,
	}

	var daily domain.DailyMinutes
	if err := store.Read(domain.SlotGymMinutes, &daily); err != nil {
		if !errors.Is(err, domain.ErrSlotNotFound) {
			logger.Warn("failed to read gym minutes slot, starting at zero", zap.Error(err))
		}
	} else {
		d.daily = daily
	}

	return d
}

// Subscribe registers a listener for gym events. Listeners are invoked
// synchronously in registration order.
func (d *Detector) Subscribe(fn func(domain.GymEvent)) {
	d.listeners = append(d.listeners, fn)
}

// ProcessSample advances the state machine with one GPS fix.
func (d *Detector) ProcessSample(s domain.LocationSample) {
	d.rolloverIfNeeded(s.Timestamp)
	d.recordHistory(s)

	dist := geo.DistanceMeters(s.Latitude, s.Longitude, d.geofence.Latitude, d.geofence.Longitude)
	effective := geo.EffectiveRadius(d.geofence.RadiusMeters, s.AccuracyMeters)
	within := dist <= effective

	switch {
	case within && !d.inside:
		d.inside = true
		d.sessionStart = s.Timestamp
		d.logger.Info("arrived at gym",
			zap.Float64("distance_m", dist),
			zap.Float64("effective_radius_m", effective))
		d.emit(domain.GymEvent{Kind: domain.GymArrival, TotalMinutes: d.daily.Minutes, At: s.Timestamp})

	case within && d.inside:
		current := flooredMinutes(d.sessionStart, s.Timestamp)
		// Live total: committed + open session, not yet persisted, so an
		// eventual departure never double-counts.
		d.emit(domain.GymEvent{Kind: domain.GymInProgress, TotalMinutes: d.daily.Minutes + current, At: s.Timestamp})

	case !within && d.inside:
		session := flooredMinutes(d.sessionStart, s.Timestamp)
		d.inside = false
		d.sessionStart = time.Time{}
		d.daily.Minutes += session
		d.persistDaily()
		d.logger.Info("left gym",
			zap.Float64("session_minutes", session),
			zap.Float64("total_minutes", d.daily.Minutes))
		d.emit(domain.GymEvent{Kind: domain.GymDeparture, TotalMinutes: d.daily.Minutes, At: s.Timestamp})
	}
}

// AccumulatedMinutes returns the committed minutes for the current day.
// An open session is not included.
func (d *Detector) AccumulatedMinutes() float64 {
	return d.daily.Minutes
}

// IsInside reports whether the detector currently considers the user inside
// the geofence.
func (d *Detector) IsInside() bool {
	return d.inside
}

// DistanceTravelledMeters sums consecutive distances over the rolling sample
// history. Display only, never authoritative for goal tracking.
func (d *Detector) DistanceTravelledMeters() float64 {
	var total float64
	for i := 1; i < len(d.history); i++ {
		a, b := d.history[i-1], d.history[i]
		total += geo.DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	}
	return total
}

// EstimatedSteps derives a step estimate from the travelled distance.
func (d *Detector) EstimatedSteps() int {
	return int(d.DistanceTravelledMeters() / strideMeters)
}

// rolloverIfNeeded zeroes the accumulator when the device date changes.
// The accumulator belongs to a (date, value) pair; a write under a new date
// resets before accumulating. Any open session carries into the new day and
// commits on departure under the new date.
func (d *Detector) rolloverIfNeeded(ts time.Time) {
	date := ts.Format(dateLayout)
	if d.daily.Date == date {
		return
	}
	if d.daily.Date != "" {
		d.logger.Info("new calendar day, resetting gym minutes",
			zap.String("previous", d.daily.Date),
			zap.String("current", date))
	}
	d.daily = domain.DailyMinutes{Date: date}
}

func (d *Detector) recordHistory(s domain.LocationSample) {
	d.history = append(d.history, s)
	if len(d.history) > historyCap {
		d.history = d.history[len(d.history)-historyCap:]
	}
}

func (d *Detector) persistDaily() {
	if err := d.store.Write(domain.SlotGymMinutes, d.daily); err != nil {
		d.logger.Warn("failed to persist gym minutes", zap.Error(err))
	}
}

func (d *Detector) emit(ev domain.GymEvent) {
	for _, fn := range d.listeners {
		fn(ev)
	}
}

func flooredMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		return 0
	}
	return math.Floor(end.Sub(start).Minutes())
}
