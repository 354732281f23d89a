//go:build integration

package integration

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/daemon"
	"github.com/stridegate/stridegate/internal/detector"
	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/engine"
	"github.com/stridegate/stridegate/internal/infra"
	"github.com/stridegate/stridegate/internal/nav"
)

// fakeBrowser is an in-process BrowsingContext for end-to-end runs.
type fakeBrowser struct {
	mu       sync.Mutex
	events   chan domain.NavigationEvent
	location string
	canceled []string
	notices  []string
	overlay  *domain.Overlay
}

func newFakeBrowser(location string) *fakeBrowser {
	return &fakeBrowser{
		events:   make(chan domain.NavigationEvent, 16),
		location: location,
	}
}

func (b *fakeBrowser) Events() <-chan domain.NavigationEvent { return b.events }

func (b *fakeBrowser) Cancel(eventID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.canceled = append(b.canceled, eventID)
	return nil
}

func (b *fakeBrowser) RemoveNode(nodeID string) error { return nil }

func (b *fakeBrowser) Notify(message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, message)
	return nil
}

func (b *fakeBrowser) RenderOverlay(o domain.Overlay) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overlay = &o
	return nil
}

func (b *fakeBrowser) ClearOverlay() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overlay = nil
	return nil
}

func (b *fakeBrowser) Location() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.location
}

func (b *fakeBrowser) canceledIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.canceled...)
}

func (b *fakeBrowser) overlayUp() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overlay != nil
}

func boolPtr(v bool) *bool                               { return &v }
func modePtr(m domain.TrackingMode) *domain.TrackingMode { return &m }
func float64Ptr(v float64) *float64                      { return &v }
func stringsPtr(v []string) *[]string                    { return &v }
func geofencePtr(g domain.Geofence) *domain.Geofence     { return &g }

var _ = Describe("Activity Gate", func() {
	var (
		tmpDir  string
		store   domain.SlotStore
		eng     *engine.Engine
		det     *detector.Detector
		browser *fakeBrowser
		source  *infra.ChannelSource
		tracker *daemon.Tracker
		ctx     context.Context
		cancel  context.CancelFunc
		runDone chan struct{}
	)

	gymFence := domain.Geofence{Latitude: 52.52, Longitude: 13.405, RadiusMeters: 150}
	atGym := func(ts time.Time) domain.LocationSample {
		return domain.LocationSample{Latitude: 52.52, Longitude: 13.405, AccuracyMeters: 10, Timestamp: ts}
	}
	awayFromGym := func(ts time.Time) domain.LocationSample {
		return domain.LocationSample{Latitude: 52.5335, Longitude: 13.405, AccuracyMeters: 10, Timestamp: ts}
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "stridegate-integration-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewFileSlotStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		eng = engine.New(store, logger)
		eng.UpdateSettings(domain.SettingsPatch{
			Enabled:              boolPtr(true),
			TrackingMode:         modePtr(domain.TrackLocation),
			LocationGoalMinutes:  float64Ptr(30),
			LocationGoalGeofence: geofencePtr(gymFence),
			BlockedWebsites:      stringsPtr([]string{"facebook.com", "reddit.com"}),
		})

		det = detector.New(gymFence, store, logger)
		browser = newFakeBrowser("https://facebook.com/feed")
		source = infra.NewChannelSource(32)

		interceptor := nav.NewInterceptor(browser, eng, nav.DefaultConfig(), logger)

		cfg := daemon.DefaultTrackerConfig()
		cfg.ReconcileInterval = 50 * time.Millisecond
		cfg.ProcessCheckInterval = time.Hour

		tracker = daemon.NewTracker(cfg, eng, det, source, nil, interceptor, logger)

		ctx, cancel = context.WithCancel(context.Background())
		runDone = make(chan struct{})
		go func() {
			defer close(runDone)
			_ = tracker.Run(ctx)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(runDone, time.Second).Should(BeClosed())
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("blocking before the goal is met", func() {
		It("should cancel navigations to blocked sites and surface a notice", func() {
			browser.events <- domain.NavigationEvent{
				ID:        "nav-1",
				Kind:      domain.NavLinkClick,
				TargetURL: "https://reddit.com/r/all",
			}

			Eventually(browser.canceledIDs, time.Second).Should(ContainElement("nav-1"))
			Eventually(func() []string {
				browser.mu.Lock()
				defer browser.mu.Unlock()
				return append([]string(nil), browser.notices...)
			}, time.Second).ShouldNot(BeEmpty())
		})

		It("should overlay the active page when it is itself blocked", func() {
			browser.events <- domain.NavigationEvent{Kind: domain.NavPageLoad}
			Eventually(browser.overlayUp, time.Second).Should(BeTrue())
		})

		It("should let allowed sites through untouched", func() {
			browser.events <- domain.NavigationEvent{
				ID:        "nav-2",
				Kind:      domain.NavLinkClick,
				TargetURL: "https://wikipedia.org",
			}

			Consistently(browser.canceledIDs, 200*time.Millisecond).Should(BeEmpty())
		})
	})

	Describe("a completed gym session opening the gate", func() {
		It("should flip the gate and clear the overlay after a 30-minute dwell", func() {
			browser.events <- domain.NavigationEvent{Kind: domain.NavPageLoad}
			Eventually(browser.overlayUp, time.Second).Should(BeTrue())

			start := time.Now()
			source.Samples <- awayFromGym(start)
			source.Samples <- atGym(start.Add(time.Minute))
			source.Samples <- atGym(start.Add(20 * time.Minute))
			source.Samples <- awayFromGym(start.Add(36 * time.Minute))

			Eventually(func() bool {
				return eng.Status().GymGoalAchieved
			}, time.Second).Should(BeTrue())

			Eventually(browser.overlayUp, time.Second).Should(BeFalse())

			browser.events <- domain.NavigationEvent{
				ID:        "nav-3",
				Kind:      domain.NavLinkClick,
				TargetURL: "https://facebook.com",
			}
			Consistently(browser.canceledIDs, 200*time.Millisecond).Should(BeEmpty())
		})

		It("should not open the gate on a partial session", func() {
			start := time.Now()
			source.Samples <- atGym(start)
			source.Samples <- awayFromGym(start.Add(12 * time.Minute))

			Eventually(func() float64 {
				return eng.Status().CurrentGymMinutes
			}, time.Second).Should(BeNumerically("==", 12))
			Expect(eng.Status().GymGoalAchieved).To(BeFalse())
			Expect(eng.ShouldBlock("https://facebook.com")).To(BeTrue())
		})
	})

	Describe("persisted progress surviving a restart", func() {
		It("should seed a fresh detector from the committed daily total", func() {
			start := time.Now()
			source.Samples <- atGym(start)
			source.Samples <- awayFromGym(start.Add(14 * time.Minute))

			Eventually(func() float64 {
				return det.AccumulatedMinutes()
			}, time.Second).Should(BeNumerically("==", 14))

			reborn := detector.New(gymFence, store, zap.NewNop())
			Expect(reborn.AccumulatedMinutes()).To(BeNumerically("==", 14))
		})
	})

	Describe("manual step entry reaching the engine via reconcile", func() {
		It("should pick up recorded steps on the next reconcile tick", func() {
			eng.UpdateSettings(domain.SettingsPatch{
				TrackingMode:  modePtr(domain.TrackSteps),
				DailyStepGoal: intPtr(8000),
			})

			steps := infra.NewStepSlotSource(store)
			Expect(steps.RecordSteps(9200)).To(Succeed())

			engWithSource := engine.New(store, zap.NewNop(), engine.WithActivitySource(steps))
			engWithSource.Reconcile()

			st := engWithSource.Status()
			Expect(st.CurrentSteps).To(Equal(9200))
			Expect(st.StepGoalAchieved).To(BeTrue())
		})
	})
})

func intPtr(v int) *int { return &v }
