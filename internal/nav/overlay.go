package nav

import (
	"fmt"

	"github.com/stridegate/stridegate/internal/domain"
)

// Recovery actions offered on the block overlay.
const (
	ActionGoBack  = "go_back"
	ActionRecheck = "recheck"
)

// BuildOverlay assembles the full-page block screen for a disallowed active
// page.
func BuildOverlay(status domain.BlockingStatus) domain.Overlay {
	return domain.Overlay{
		Title:    "Site blocked",
		Message:  status.BlockingMessage,
		Progress: status,
		Actions:  []string{ActionGoBack, ActionRecheck},
	}
}

// noticeText is the transient message shown when a navigation is suppressed.
// It reports remaining progress toward the active goal.
func noticeText(status domain.BlockingStatus) string {
	switch status.TrackingMode {
	case domain.TrackSteps:
		return fmt.Sprintf("Blocked: %d steps to go (%d/%d)",
			status.RemainingSteps, status.CurrentSteps, status.DailyStepGoal)
	case domain.TrackLocation:
		return fmt.Sprintf("Blocked: %.0f gym minutes to go (%.0f/%.0f)",
			status.RemainingGymMinutes, status.CurrentGymMinutes, status.GymGoalMinutes)
	default:
		return fmt.Sprintf("Blocked: %d steps and %.0f gym minutes to go",
			status.RemainingSteps, status.RemainingGymMinutes)
	}
}
