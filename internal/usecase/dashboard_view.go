package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/domain/user"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

type DashboardFrameKind string

const (
	FrameDashboard DashboardFrameKind = "dashboard"
	FrameRedirect  DashboardFrameKind = "redirect"
	FrameError     DashboardFrameKind = "error"
)

// DashboardFrame is one update pushed to a mounted dashboard.
type DashboardFrame struct {
	Kind     DashboardFrameKind
	Page     DashboardPage
	Location string
	Message  string
}

// DashboardSink receives frames in order. It is called with the view lock held
// and must not call back into the view.
type DashboardSink func(DashboardFrame)

type dashboardPageLoader interface {
	Page(ctx context.Context, principal user.Principal) (DashboardPage, error)
}

var errViewClosed = errors.New("dashboard view is closed")

// DashboardView follows one session while a dashboard is mounted. Loads that
// finish after the view is deactivated, after the session ends, or after a newer
// load started are dropped. Every load is bounded by loadTimeout, so a reload
// triggered from the event hub cannot hold a dispatch worker indefinitely.
type DashboardView struct {
	loader      dashboardPageLoader
	notifier    session.Notifier
	sink        DashboardSink
	logger      *logging.Logger
	loadTimeout time.Duration

	mu         sync.Mutex
	sess       *session.Session
	sub        session.Subscription
	eventCtx   context.Context
	generation uint64
	active     bool
	closed     bool
}

// NewView prepares a view for sess; a nil sess means the client has no session.
func (s *DashboardService) NewView(sess *session.Session, notifier session.Notifier, sink DashboardSink) *DashboardView {
	return newDashboardView(s, sess, notifier, sink, s.logger, s.cfg.LoadTimeout)
}

func newDashboardView(
	loader dashboardPageLoader,
	sess *session.Session,
	notifier session.Notifier,
	sink DashboardSink,
	logger *logging.Logger,
	loadTimeout time.Duration,
) *DashboardView {
	if sink == nil {
		sink = func(DashboardFrame) {}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if loadTimeout <= 0 {
		loadTimeout = defaultDashboardLoadTimeout
	}
	return &DashboardView{
		loader:      loader,
		notifier:    notifier,
		sink:        sink,
		logger:      logger.Named("dashboard.view"),
		loadTimeout: loadTimeout,
		sess:        sess,
	}
}

// Activate mounts the view: without a session it redirects to the auth entry and
// loads nothing; otherwise it subscribes to session changes and loads the leagues.
func (v *DashboardView) Activate(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errViewClosed
	}
	if v.sess == nil {
		v.closed = true
		v.sink(DashboardFrame{Kind: FrameRedirect, Location: AuthEntryPath})
		v.mu.Unlock()
		return fmt.Errorf("%w: no session", ErrUnauthenticated)
	}
	if v.active {
		v.mu.Unlock()
		return nil
	}

	v.active = true
	v.eventCtx = context.WithoutCancel(ctx)
	if v.notifier != nil {
		v.sub = v.notifier.Subscribe(v.sess.UserID(), v.handleEvent)
	}
	v.mu.Unlock()

	return v.Reload(ctx)
}

// Reload fetches the leagues again and emits a dashboard frame unless the result is stale.
func (v *DashboardView) Reload(ctx context.Context) error {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return nil
	}
	v.generation++
	generation := v.generation
	principal := v.sess.Principal
	v.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, v.loadTimeout)
	page, err := v.loader.Page(loadCtx, principal)
	cancel()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active || generation != v.generation {
		v.logger.DebugContext(ctx, "dropping stale dashboard load",
			"user_id", principal.UserID,
			"generation", generation,
		)
		return nil
	}
	if err != nil {
		v.sink(DashboardFrame{Kind: FrameError, Message: err.Error()})
		return err
	}
	v.sink(DashboardFrame{Kind: FrameDashboard, Page: page})
	return nil
}

// Deactivate unmounts the view and releases its subscription. Safe to call repeatedly.
func (v *DashboardView) Deactivate() {
	v.mu.Lock()
	sub := v.stopLocked()
	v.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (v *DashboardView) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *DashboardView) handleEvent(event session.Event) {
	v.mu.Lock()
	if !v.active || !event.Affects(*v.sess) {
		v.mu.Unlock()
		return
	}

	switch event.Kind {
	case session.EventSignedOut:
		sub := v.stopLocked()
		v.sink(DashboardFrame{Kind: FrameRedirect, Location: AuthEntryPath})
		v.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
	case session.EventLeaguesChanged:
		ctx := v.eventCtx
		v.mu.Unlock()
		if err := v.Reload(ctx); err != nil {
			v.logger.WarnContext(ctx, "reload dashboard after leagues change failed", "error", err)
		}
	default:
		v.mu.Unlock()
	}
}

func (v *DashboardView) stopLocked() session.Subscription {
	v.active = false
	v.closed = true
	v.generation++
	sub := v.sub
	v.sub = nil
	return sub
}
