package nav

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/domain"
)

// fakeEngine implements PolicyEngine with a fixed blocked set.
type fakeEngine struct {
	mu      sync.Mutex
	blocked map[string]bool
	status  domain.BlockingStatus
	subs    map[int]func(domain.BlockingStatus)
	nextID  int
}

func newFakeEngine(blocked ...string) *fakeEngine {
	m := make(map[string]bool, len(blocked))
	for _, b := range blocked {
		m[b] = true
	}
	return &fakeEngine{
		blocked: m,
		status: domain.BlockingStatus{
			IsBlocked:      true,
			TrackingMode:   domain.TrackSteps,
			RemainingSteps: 4000,
			CurrentSteps:   6000,
			DailyStepGoal:  10000,
		},
		subs: make(map[int]func(domain.BlockingStatus)),
	}
}

func (f *fakeEngine) ShouldBlock(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[url]
}

func (f *fakeEngine) Status() domain.BlockingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) Subscribe(fn func(domain.BlockingStatus)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.subs[f.nextID] = fn
	return f.nextID
}

func (f *fakeEngine) Unsubscribe(token int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, token)
}

func (f *fakeEngine) unblockAll() {
	f.mu.Lock()
	f.blocked = map[string]bool{}
	f.status.IsBlocked = false
	subs := make([]func(domain.BlockingStatus), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	st := f.status
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

var _ PolicyEngine = (*fakeEngine)(nil)

// fakeContext implements domain.BrowsingContext recording all commands.
type fakeContext struct {
	mu       sync.Mutex
	events   chan domain.NavigationEvent
	location string

	canceled []string
	removed  []string
	notices  []string
	overlays []domain.Overlay
	cleared  int
}

func newFakeContext(location string) *fakeContext {
	return &fakeContext{
		events:   make(chan domain.NavigationEvent, 16),
		location: location,
	}
}

func (c *fakeContext) Events() <-chan domain.NavigationEvent { return c.events }

func (c *fakeContext) Cancel(eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = append(c.canceled, eventID)
	return nil
}

func (c *fakeContext) RemoveNode(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, nodeID)
	return nil
}

func (c *fakeContext) Notify(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, message)
	return nil
}

func (c *fakeContext) RenderOverlay(o domain.Overlay) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = append(c.overlays, o)
	return nil
}

func (c *fakeContext) ClearOverlay() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
	return nil
}

func (c *fakeContext) Location() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

type ctxCalls struct {
	canceled []string
	removed  []string
	notices  []string
	overlays []domain.Overlay
	cleared  int
}

func (c *fakeContext) snapshot() ctxCalls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ctxCalls{
		canceled: append([]string(nil), c.canceled...),
		removed:  append([]string(nil), c.removed...),
		notices:  append([]string(nil), c.notices...),
		overlays: append([]domain.Overlay(nil), c.overlays...),
		cleared:  c.cleared,
	}
}

var _ domain.BrowsingContext = (*fakeContext)(nil)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startInterceptor(t *testing.T, bctx *fakeContext, eng PolicyEngine, cfg Config) *Interceptor {
	t.Helper()
	i := NewInterceptor(bctx, eng, cfg, zap.NewNop())
	i.Start(context.Background())
	t.Cleanup(i.Teardown)
	return i
}

func TestInterceptor_CancelsBlockedLinkClick(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://example.com")
	startInterceptor(t, bctx, eng, DefaultConfig())

	bctx.events <- domain.NavigationEvent{ID: "ev1", Kind: domain.NavLinkClick, TargetURL: "https://facebook.com"}

	eventually(t, func() bool { return len(bctx.snapshot().canceled) == 1 }, "expected cancel")
	snap := bctx.snapshot()
	assert.Equal(t, []string{"ev1"}, snap.canceled)
	require.Len(t, snap.notices, 1)
	assert.Contains(t, snap.notices[0], "4000 steps to go")
}

func TestInterceptor_AllowedNavigationPassesThrough(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://example.com")
	startInterceptor(t, bctx, eng, DefaultConfig())

	bctx.events <- domain.NavigationEvent{ID: "ev1", Kind: domain.NavLinkClick, TargetURL: "https://wikipedia.org"}
	bctx.events <- domain.NavigationEvent{ID: "ev2", Kind: domain.NavFormSubmit, TargetURL: "https://wikipedia.org/search"}

	// Drain with a third, blocked event to prove ordering.
	bctx.events <- domain.NavigationEvent{ID: "ev3", Kind: domain.NavLinkClick, TargetURL: "https://facebook.com"}
	eventually(t, func() bool { return len(bctx.snapshot().canceled) == 1 }, "expected only the blocked event canceled")
	assert.Equal(t, []string{"ev3"}, bctx.snapshot().canceled)
}

func TestInterceptor_HistoryMutationGuarded(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://example.com")
	startInterceptor(t, bctx, eng, DefaultConfig())

	bctx.events <- domain.NavigationEvent{ID: "h1", Kind: domain.NavHistoryPush, TargetURL: "https://facebook.com"}
	bctx.events <- domain.NavigationEvent{ID: "h2", Kind: domain.NavHistoryReplace, TargetURL: "https://facebook.com"}

	eventually(t, func() bool { return len(bctx.snapshot().canceled) == 2 }, "expected both history mutations canceled")
}

func TestInterceptor_BlockedFrameRemovedOutright(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://example.com")
	startInterceptor(t, bctx, eng, DefaultConfig())

	bctx.events <- domain.NavigationEvent{ID: "f1", Kind: domain.NavFrameInserted, TargetURL: "https://facebook.com", NodeID: "iframe-7"}

	eventually(t, func() bool { return len(bctx.snapshot().removed) == 1 }, "expected frame removal")
	snap := bctx.snapshot()
	assert.Equal(t, []string{"iframe-7"}, snap.removed)
	assert.Empty(t, snap.notices, "frame removal carries no notice")
	assert.Empty(t, snap.canceled)
}

func TestInterceptor_BlockedCurrentPageGetsOverlay(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://facebook.com")
	startInterceptor(t, bctx, eng, DefaultConfig())

	eventually(t, func() bool { return len(bctx.snapshot().overlays) >= 1 }, "expected overlay at start")
	ov := bctx.snapshot().overlays[0]
	assert.Equal(t, []string{ActionGoBack, ActionRecheck}, ov.Actions)
	assert.Equal(t, 4000, ov.Progress.RemainingSteps)
}

func TestInterceptor_OverlayClearsWhenGoalReached(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://facebook.com")
	startInterceptor(t, bctx, eng, DefaultConfig())

	eventually(t, func() bool { return len(bctx.snapshot().overlays) >= 1 }, "expected overlay at start")

	eng.unblockAll()
	eventually(t, func() bool { return bctx.snapshot().cleared >= 1 }, "expected overlay cleared on status change")
}

func TestInterceptor_HooksIndividuallyToggleable(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://example.com")
	cfg := Config{GuardLinks: false, GuardForms: true, GuardHistory: false, GuardDOM: false, GuardPage: false}
	startInterceptor(t, bctx, eng, cfg)

	bctx.events <- domain.NavigationEvent{ID: "l1", Kind: domain.NavLinkClick, TargetURL: "https://facebook.com"}
	bctx.events <- domain.NavigationEvent{ID: "h1", Kind: domain.NavHistoryPush, TargetURL: "https://facebook.com"}
	bctx.events <- domain.NavigationEvent{ID: "d1", Kind: domain.NavFrameInserted, TargetURL: "https://facebook.com", NodeID: "n1"}
	bctx.events <- domain.NavigationEvent{ID: "s1", Kind: domain.NavFormSubmit, TargetURL: "https://facebook.com"}

	eventually(t, func() bool { return len(bctx.snapshot().canceled) == 1 }, "expected only the form submission canceled")
	snap := bctx.snapshot()
	assert.Equal(t, []string{"s1"}, snap.canceled)
	assert.Empty(t, snap.removed)
	assert.Empty(t, snap.overlays)
}

func TestInterceptor_PausedEventsPassThrough(t *testing.T) {
	eng := newFakeEngine("https://facebook.com")
	bctx := newFakeContext("https://example.com")
	i := startInterceptor(t, bctx, eng, DefaultConfig())

	i.SetPaused(true)
	bctx.events <- domain.NavigationEvent{ID: "p1", Kind: domain.NavLinkClick, TargetURL: "https://facebook.com"}

	// Let the paused event drain before resuming.
	eventually(t, func() bool { return len(bctx.events) == 0 }, "expected paused event consumed")
	i.SetPaused(false)
	bctx.events <- domain.NavigationEvent{ID: "p2", Kind: domain.NavLinkClick, TargetURL: "https://facebook.com"}

	eventually(t, func() bool { return len(bctx.snapshot().canceled) == 1 }, "expected only the unpaused event canceled")
	assert.Equal(t, []string{"p2"}, bctx.snapshot().canceled)
}

func TestInterceptor_TeardownIdempotent(t *testing.T) {
	eng := newFakeEngine()
	bctx := newFakeContext("https://example.com")
	i := NewInterceptor(bctx, eng, DefaultConfig(), zap.NewNop())

	// Teardown before Start is safe.
	i.Teardown()

	i.Start(context.Background())
	i.Teardown()
	i.Teardown()

	// After teardown the subscription is gone.
	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Empty(t, eng.subs)
}

func TestInterceptor_StartIdempotent(t *testing.T) {
	eng := newFakeEngine()
	bctx := newFakeContext("https://example.com")
	i := NewInterceptor(bctx, eng, DefaultConfig(), zap.NewNop())

	i.Start(context.Background())
	i.Start(context.Background())
	defer i.Teardown()

	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Len(t, eng.subs, 1, "second Start installs nothing")
}
