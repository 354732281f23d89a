// Package nav implements the navigation interception layer: it consumes
// navigation events from a browsing context, consults the policy engine, and
// suppresses disallowed navigations. Containment only - it cannot stop a user
// opening a new tab or typing an address directly.
package nav

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/domain"
)

// PolicyEngine is the slice of the engine the interceptor needs.
type PolicyEngine interface {
	ShouldBlock(url string) bool
	Status() domain.BlockingStatus
	Subscribe(fn func(domain.BlockingStatus)) int
	Unsubscribe(token int)
}

// Config toggles each hook independently.
type Config struct {
	GuardLinks   bool // link clicks
	GuardForms   bool // form submissions
	GuardHistory bool // history push/replace
	GuardDOM     bool // inserted iframes and links
	GuardPage    bool // full-page overlay for a blocked active page
}

// DefaultConfig enables every hook.
func DefaultConfig() Config {
	return Config{
		GuardLinks:   true,
		GuardForms:   true,
		GuardHistory: true,
		GuardDOM:     true,
		GuardPage:    true,
	}
}

// Interceptor wires a browsing context to the policy engine.
type Interceptor struct {
	bctx   domain.BrowsingContext
	engine PolicyEngine
	config Config
	logger *zap.Logger

	paused atomic.Bool

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	statusSub int
	overlayUp bool
}

// NewInterceptor creates an interceptor; call Start to install the hooks.
func NewInterceptor(bctx domain.BrowsingContext, eng PolicyEngine, config Config, logger *zap.Logger) *Interceptor {
	return &Interceptor{
		bctx:   bctx,
		engine: eng,
		config: config,
		logger: logger,
	}
}

// Start installs the hooks: it begins consuming navigation events, subscribes
// to engine status changes, and evaluates the current page once. Calling
// Start on a started interceptor is a no-op.
func (i *Interceptor) Start(ctx context.Context) {
	i.mu.Lock()
	if i.started {
		i.mu.Unlock()
		return
	}
	i.started = true
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.done = make(chan struct{})
	i.statusSub = i.engine.Subscribe(i.onStatusChange)
	i.mu.Unlock()

	i.evaluateCurrentPage()

	go i.consume(runCtx)
}

// Teardown disconnects all hooks. Idempotent: safe to call repeatedly or
// before Start.
func (i *Interceptor) Teardown() {
	i.mu.Lock()
	if !i.started {
		i.mu.Unlock()
		return
	}
	i.started = false
	cancel, done, sub := i.cancel, i.done, i.statusSub
	i.cancel = nil
	i.mu.Unlock()

	i.engine.Unsubscribe(sub)
	cancel()
	<-done
	i.logger.Debug("interceptor torn down")
}

// SetPaused suspends event handling, e.g. while the attached browser process
// is gone. Events arriving while paused pass through unexamined (fail open).
func (i *Interceptor) SetPaused(paused bool) {
	i.paused.Store(paused)
}

func (i *Interceptor) consume(ctx context.Context) {
	defer close(i.done)
	events := i.bctx.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				i.logger.Info("browsing context closed")
				return
			}
			if i.paused.Load() {
				continue
			}
			i.handle(ev)
		}
	}
}

func (i *Interceptor) handle(ev domain.NavigationEvent) {
	switch ev.Kind {
	case domain.NavLinkClick:
		if i.config.GuardLinks {
			i.guardNavigation(ev)
		}
	case domain.NavFormSubmit:
		if i.config.GuardForms {
			i.guardNavigation(ev)
		}
	case domain.NavHistoryPush, domain.NavHistoryReplace:
		if i.config.GuardHistory {
			i.guardNavigation(ev)
		}
	case domain.NavFrameInserted:
		if i.config.GuardDOM && i.engine.ShouldBlock(ev.TargetURL) {
			// Blocked frames are removed outright, no notice.
			if err := i.bctx.RemoveNode(ev.NodeID); err != nil {
				i.logger.Warn("failed to remove blocked frame", zap.Error(err))
			} else {
				i.logger.Info("removed blocked frame", zap.String("url", ev.TargetURL))
			}
		}
	case domain.NavLinkInserted:
		// Clicks are guarded globally, so an inserted link needs no extra
		// hook; its eventual click arrives as NavLinkClick.
	case domain.NavPageLoad:
		if i.config.GuardPage {
			i.evaluateCurrentPage()
		}
	}
}

// guardNavigation cancels a blocked navigation and surfaces a transient
// notice with remaining progress.
func (i *Interceptor) guardNavigation(ev domain.NavigationEvent) {
	if !i.engine.ShouldBlock(ev.TargetURL) {
		return
	}
	if err := i.bctx.Cancel(ev.ID); err != nil {
		i.logger.Warn("failed to cancel navigation", zap.Error(err))
		return
	}
	status := i.engine.Status()
	if err := i.bctx.Notify(noticeText(status)); err != nil {
		i.logger.Warn("failed to surface block notice", zap.Error(err))
	}
	i.logger.Info("blocked navigation",
		zap.String("kind", string(ev.Kind)),
		zap.String("url", ev.TargetURL))
}

// evaluateCurrentPage renders or clears the full-page overlay depending on
// whether the active page itself is blocked.
func (i *Interceptor) evaluateCurrentPage() {
	if !i.config.GuardPage {
		return
	}
	location := i.bctx.Location()
	blocked := i.engine.ShouldBlock(location)

	i.mu.Lock()
	wasUp := i.overlayUp
	i.overlayUp = blocked
	i.mu.Unlock()

	switch {
	case blocked:
		status := i.engine.Status()
		if err := i.bctx.RenderOverlay(BuildOverlay(status)); err != nil {
			i.logger.Warn("failed to render overlay", zap.Error(err))
		} else if !wasUp {
			i.logger.Info("rendered block overlay", zap.String("url", location))
		}
	case wasUp:
		if err := i.bctx.ClearOverlay(); err != nil {
			i.logger.Warn("failed to clear overlay", zap.Error(err))
		} else {
			i.logger.Info("cleared block overlay")
		}
	}
}

// Recheck re-evaluates the active page, backing the overlay's re-check
// recovery action.
func (i *Interceptor) Recheck() {
	i.evaluateCurrentPage()
}

// onStatusChange keeps the overlay in sync with goal progress: reaching the
// goal clears a standing overlay without any navigation.
func (i *Interceptor) onStatusChange(domain.BlockingStatus) {
	if i.paused.Load() {
		return
	}
	i.evaluateCurrentPage()
}
