package domain

import (
	"context"
	"errors"
)

// ErrSlotNotFound is returned by SlotStore.Read when a slot has never been
// written.
var ErrSlotNotFound = errors.New("slot not found")

// Well-known slot names shared between the engine and its collaborators.
const (
	SlotSettings   = "blocking_settings"
	SlotSteps      = "daily_steps"
	SlotGymMinutes = "daily_gym_minutes"
	SlotFavorites  = "favorite_locations"
)

// SlotStore provides named-slot persistence for JSON-serializable records.
// Implementations: plain file store, SQLCipher-encrypted store.
type SlotStore interface {
	// Read unmarshals the named slot into v. Returns ErrSlotNotFound if the
	// slot has never been written.
	Read(name string, v any) error

	// Write marshals v into the named slot, replacing any prior value.
	// The write is atomic: readers never observe a partial record.
	Write(name string, v any) error

	// Delete removes the named slot. Deleting a missing slot is not an error.
	Delete(name string) error

	// Close releases underlying resources.
	Close() error
}

// LocationProvider delivers GPS fixes. Implementation: JSONL replay source;
// a real provider would wrap a platform geolocation API.
type LocationProvider interface {
	// Watch delivers samples to fn until ctx is canceled. Sensor failures
	// (permission denied, timeout, unavailable) are reported through errFn
	// and do not terminate the watch; the caller decides whether to restart.
	Watch(ctx context.Context, fn func(LocationSample), errFn func(error)) error
}

// ActivitySource supplies the current day's step count, e.g. from a manual
// entry slot or a simulated health-app sync.
type ActivitySource interface {
	// CurrentSteps returns today's step count. A source with no data for
	// today returns 0, not an error.
	CurrentSteps() (int, error)
}

// BrowsingContext abstracts the page the interception layer is attached to.
// Implementations translate these primitives to whatever the host browsing
// environment offers.
type BrowsingContext interface {
	// Events returns the stream of navigation events. The channel is closed
	// when the context goes away.
	Events() <-chan NavigationEvent

	// Cancel suppresses the default action of the identified event.
	Cancel(eventID string) error

	// RemoveNode deletes an inserted DOM node outright.
	RemoveNode(nodeID string) error

	// Notify surfaces a transient blocked-navigation notice.
	Notify(message string) error

	// RenderOverlay replaces the visible document with a full-page overlay.
	RenderOverlay(o Overlay) error

	// ClearOverlay removes a previously rendered overlay.
	ClearOverlay() error

	// Location returns the current page address.
	Location() string
}

// ProcessWatcher reports on OS processes: whether the attached browser is
// alive, and which running processes match blocked-app labels.
// Implementation: gopsutil. Detection only - killing processes is out of scope.
type ProcessWatcher interface {
	// IsRunning reports whether any process matches the name pattern.
	IsRunning(pattern string) (bool, error)

	// MatchingProcesses returns names of running processes matching any of
	// the given label patterns (case-insensitive substring).
	MatchingProcesses(labels []string) ([]string, error)
}
