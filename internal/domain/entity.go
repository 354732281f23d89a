// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// TrackingMode selects which activity signal(s) gate the blocking decision.
type TrackingMode string

const (
	TrackSteps    TrackingMode = "steps"
	TrackLocation TrackingMode = "location"
	TrackBoth     TrackingMode = "both"
)

// Geofence is a circular region used to detect gym entry/exit.
type Geofence struct {
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`
}

// GoalConfig defines the location goal: minutes required inside a geofence.
type GoalConfig struct {
	RequiredMinutes float64  `json:"required_minutes" yaml:"required_minutes"`
	Geofence        Geofence `json:"geofence" yaml:"geofence"`
}

// BlockingSettings is the persisted gate configuration.
// Loaded once at engine construction, mutated only through the engine,
// persisted after every accepted mutation.
type BlockingSettings struct {
	Enabled               bool         `json:"enabled"`
	StrictMode            bool         `json:"strict_mode"`
	StrictModeActivatedAt *time.Time   `json:"strict_mode_activated_at,omitempty"`
	TrackingMode          TrackingMode `json:"tracking_mode"`
	DailyStepGoal         int          `json:"daily_step_goal"`
	LocationGoal          GoalConfig   `json:"location_goal"`
	BlockedApps           []string     `json:"blocked_apps"`
	BlockedWebsites       []string     `json:"blocked_websites"`
	AllowedDomains        []string     `json:"allowed_domains"`
	BlockingMessage       string       `json:"blocking_message"`
}

// SettingsPatch carries a partial settings mutation.
// Nil fields are left untouched by the merge.
type SettingsPatch struct {
	Enabled              *bool         `json:"enabled,omitempty"`
	StrictMode           *bool         `json:"strict_mode,omitempty"`
	TrackingMode         *TrackingMode `json:"tracking_mode,omitempty"`
	DailyStepGoal        *int          `json:"daily_step_goal,omitempty"`
	LocationGoalMinutes  *float64      `json:"location_goal_minutes,omitempty"`
	LocationGoalGeofence *Geofence     `json:"location_goal_geofence,omitempty"`
	BlockedApps          *[]string     `json:"blocked_apps,omitempty"`
	BlockedWebsites      *[]string     `json:"blocked_websites,omitempty"`
	AllowedDomains       *[]string     `json:"allowed_domains,omitempty"`
	BlockingMessage      *string       `json:"blocking_message,omitempty"`
}

// Progress is the transient in-memory activity state. Never persisted as a
// unit; steps and gym minutes are cached under dedicated slots by collaborators.
type Progress struct {
	CurrentSteps      int
	CurrentGymMinutes float64
}

// BlockingStatus is a read-only snapshot derived from settings + progress.
// Computed on demand, never stored.
type BlockingStatus struct {
	Enabled             bool          `json:"enabled"`
	IsBlocked           bool          `json:"is_blocked"`
	Reason              string        `json:"reason"`
	TrackingMode        TrackingMode  `json:"tracking_mode"`
	CurrentSteps        int           `json:"current_steps"`
	DailyStepGoal       int           `json:"daily_step_goal"`
	RemainingSteps      int           `json:"remaining_steps"`
	CurrentGymMinutes   float64       `json:"current_gym_minutes"`
	GymGoalMinutes      float64       `json:"gym_goal_minutes"`
	RemainingGymMinutes float64       `json:"remaining_gym_minutes"`
	StepGoalAchieved    bool          `json:"step_goal_achieved"`
	GymGoalAchieved     bool          `json:"gym_goal_achieved"`
	GoalsAchieved       bool          `json:"goals_achieved"`
	StrictMode          bool          `json:"strict_mode"`
	StrictLockRemaining time.Duration `json:"strict_lock_remaining_ms"`
	BlockingMessage     string        `json:"blocking_message"`
}

// LocationSample is one GPS fix fed into the session detector.
type LocationSample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Timestamp      time.Time `json:"timestamp"`
}

// GymEventKind identifies a detector transition.
type GymEventKind string

const (
	GymArrival    GymEventKind = "arrival"
	GymDeparture  GymEventKind = "departure"
	GymInProgress GymEventKind = "in_progress"
)

// GymEvent is emitted by the session detector on state transitions and
// while a session is in progress.
type GymEvent struct {
	Kind GymEventKind
	// TotalMinutes is the committed daily total. For an in-progress event it
	// additionally includes the minutes of the still-open session.
	TotalMinutes float64
	At           time.Time
}

// DailyMinutes binds a gym-minutes accumulator to the device date it belongs
// to. A write under a different date resets the value before accumulating.
type DailyMinutes struct {
	Date    string  `json:"date"` // YYYY-MM-DD, device-local
	Minutes float64 `json:"minutes"`
}

// DailySteps is the persisted step-count slot written by the activity source.
type DailySteps struct {
	Date  string `json:"date"`
	Steps int    `json:"steps"`
}

// Favorite is a saved location managed by the settings UI.
type Favorite struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AddedAt   time.Time `json:"added_at"`
}

// NavigationKind identifies the browsing-context event that triggered a check.
type NavigationKind string

const (
	NavLinkClick      NavigationKind = "link_click"
	NavFormSubmit     NavigationKind = "form_submit"
	NavHistoryPush    NavigationKind = "history_push"
	NavHistoryReplace NavigationKind = "history_replace"
	NavFrameInserted  NavigationKind = "frame_inserted"
	NavLinkInserted   NavigationKind = "link_inserted"
	NavPageLoad       NavigationKind = "page_load"
)

// NavigationEvent is one navigation attempt observed in the browsing context.
type NavigationEvent struct {
	ID   string
	Kind NavigationKind
	// TargetURL is the navigation destination, or the frame/link source for
	// DOM insertions.
	TargetURL string
	// NodeID identifies the inserted DOM node for frame/link insertions.
	NodeID string
	At     time.Time
}

// Overlay describes the full-page block screen rendered when the active page
// itself is disallowed. It is a containment measure, not a security boundary:
// it cannot stop direct navigation via the address bar or a new tab.
type Overlay struct {
	Title    string
	Message  string
	Progress BlockingStatus
	// Actions are the recovery actions offered (navigate back, re-check).
	Actions []string
}
