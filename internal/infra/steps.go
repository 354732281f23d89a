package infra

import (
	"errors"
	"time"

	"github.com/stridegate/stridegate/internal/domain"
)

// StepSlotSource implements domain.ActivitySource over the persisted daily
// steps slot. The slot is written by manual entry (CLI, API) or a simulated
// health-app sync; this source is the read side the engine reconciles from.
type StepSlotSource struct {
	store domain.SlotStore
	now   func() time.Time
}

// NewStepSlotSource creates a step source over the given store.
func NewStepSlotSource(store domain.SlotStore) *StepSlotSource {
	return &StepSlotSource{store: store, now: time.Now}
}

// CurrentSteps returns today's step count; a missing or stale-dated slot
// yields 0, not an error.
func (s *StepSlotSource) CurrentSteps() (int, error) {
	var daily domain.DailySteps
	if err := s.store.Read(domain.SlotSteps, &daily); err != nil {
		if errors.Is(err, domain.ErrSlotNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if daily.Date != s.now().Format("2006-01-02") {
		return 0, nil
	}
	return daily.Steps, nil
}

// RecordSteps writes today's step count to the slot (the manual-entry /
// simulated-sync write path).
func (s *StepSlotSource) RecordSteps(steps int) error {
	if steps < 0 {
		steps = 0
	}
	return s.store.Write(domain.SlotSteps, domain.DailySteps{
		Date:  s.now().Format("2006-01-02"),
		Steps: steps,
	})
}

// Ensure StepSlotSource implements domain.ActivitySource.
var _ domain.ActivitySource = (*StepSlotSource)(nil)
