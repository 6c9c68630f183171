package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/domain/user"
	"github.com/riskibarqy/porras-fc/internal/platform/eventbus"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []DashboardFrame
}

func (r *frameRecorder) sink(f DashboardFrame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *frameRecorder) snapshot() []DashboardFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DashboardFrame(nil), r.frames...)
}

type stubPageLoader struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	page    DashboardPage
	err     error
	// hang blocks every load until its context is done.
	hang bool
}

func (s *stubPageLoader) Page(ctx context.Context, principal user.Principal) (DashboardPage, error) {
	s.mu.Lock()
	s.calls++
	started, release := s.started, s.release
	page, err, hang := s.page, s.err, s.hang
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return DashboardPage{}, ctx.Err()
	}

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return page, err
}

func (s *stubPageLoader) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testSession() *session.Session {
	return &session.Session{ID: "s1", Principal: user.Principal{UserID: "u1", DisplayName: "Lucía"}}
}

func TestDashboardView_NoSessionRedirectsWithoutLoading(t *testing.T) {
	loader := &stubPageLoader{}
	hub, _ := eventbus.NewHub(0)
	frames := &frameRecorder{}

	view := newDashboardView(loader, nil, hub, frames.sink, nil, 0)
	err := view.Activate(context.Background())
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	got := frames.snapshot()
	if len(got) != 1 || got[0].Kind != FrameRedirect || got[0].Location != AuthEntryPath {
		t.Fatalf("expected single redirect to %s, got %+v", AuthEntryPath, got)
	}
	if loader.callCount() != 0 {
		t.Fatalf("no data load expected without session, got %d", loader.callCount())
	}
}

func TestDashboardView_LoadsAndReloadsOnLeaguesChanged(t *testing.T) {
	loader := &stubPageLoader{page: DashboardPage{Greeting: "Hola, Lucía", Empty: true}}
	hub, _ := eventbus.NewHub(0)
	frames := &frameRecorder{}

	view := newDashboardView(loader, testSession(), hub, frames.sink, nil, 0)
	if err := view.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if hub.Subscribers("u1") != 1 {
		t.Fatalf("expected active subscription")
	}

	_ = hub.Publish(context.Background(), session.Event{Kind: session.EventLeaguesChanged, UserID: "u1"})
	_ = hub.Publish(context.Background(), session.Event{Kind: session.EventLeaguesChanged, UserID: "someone-else"})

	got := frames.snapshot()
	if len(got) != 2 || got[0].Kind != FrameDashboard || got[1].Kind != FrameDashboard {
		t.Fatalf("expected initial and reloaded dashboard frames, got %+v", got)
	}
	if loader.callCount() != 2 {
		t.Fatalf("expected two loads, got %d", loader.callCount())
	}

	view.Deactivate()
	view.Deactivate()
	if hub.Subscribers("u1") != 0 {
		t.Fatalf("deactivate must release the subscription")
	}
	if err := view.Reload(context.Background()); err != nil || loader.callCount() != 2 {
		t.Fatalf("inactive view must not load, err=%v calls=%d", err, loader.callCount())
	}
}

func TestDashboardView_SignOutDiscardsInFlightLoad(t *testing.T) {
	loader := &stubPageLoader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		page:    DashboardPage{Greeting: "Hola, Lucía"},
	}
	hub, _ := eventbus.NewHub(0)
	frames := &frameRecorder{}
	view := newDashboardView(loader, testSession(), hub, frames.sink, nil, 0)

	activated := make(chan error, 1)
	go func() { activated <- view.Activate(context.Background()) }()

	select {
	case <-loader.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("load did not start")
	}

	_ = hub.Publish(context.Background(), session.Event{Kind: session.EventSignedOut, UserID: "u1", SessionID: "s1"})
	close(loader.release)

	if err := <-activated; err != nil {
		t.Fatalf("activate returned %v", err)
	}

	got := frames.snapshot()
	if len(got) != 1 || got[0].Kind != FrameRedirect || got[0].Location != AuthEntryPath {
		t.Fatalf("expected only the redirect frame, got %+v", got)
	}
	if view.Active() {
		t.Fatalf("view must be inactive after sign-out")
	}
	if hub.Subscribers("u1") != 0 {
		t.Fatalf("sign-out must release the subscription")
	}
}

func TestDashboardView_IgnoresOtherSessionSignOut(t *testing.T) {
	loader := &stubPageLoader{}
	hub, _ := eventbus.NewHub(0)
	frames := &frameRecorder{}
	view := newDashboardView(loader, testSession(), hub, frames.sink, nil, 0)
	_ = view.Activate(context.Background())

	_ = hub.Publish(context.Background(), session.Event{Kind: session.EventSignedOut, UserID: "u1", SessionID: "other-device"})
	if !view.Active() {
		t.Fatalf("sign-out of another session must not end this view")
	}

	_ = hub.Publish(context.Background(), session.Event{Kind: session.EventSignedOut, UserID: "u1"})
	if view.Active() {
		t.Fatalf("sign-out of every session must end this view")
	}
}

func TestDashboardView_LoadErrorEmitsMessage(t *testing.T) {
	loader := &stubPageLoader{err: &ServiceError{Op: "list leagues by member", Err: errors.New("JWT expired")}}
	frames := &frameRecorder{}
	view := newDashboardView(loader, testSession(), nil, frames.sink, nil, 0)

	err := view.Activate(context.Background())
	if !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected ErrServiceError, got %v", err)
	}
	got := frames.snapshot()
	if len(got) != 1 || got[0].Kind != FrameError || got[0].Message != "JWT expired" {
		t.Fatalf("expected verbatim error frame, got %+v", got)
	}
}

func TestDashboardView_SupersededLoadIsDropped(t *testing.T) {
	release := make(chan struct{})
	loader := &stubPageLoader{started: make(chan struct{}), release: release, page: DashboardPage{Greeting: "old"}}
	frames := &frameRecorder{}
	view := newDashboardView(loader, testSession(), nil, frames.sink, nil, 0)

	done := make(chan struct{})
	go func() {
		_ = view.Activate(context.Background())
		close(done)
	}()
	<-loader.started

	loader.mu.Lock()
	loader.started, loader.release, loader.page = nil, nil, DashboardPage{Greeting: "new"}
	loader.mu.Unlock()
	if err := view.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	close(release)
	<-done

	got := frames.snapshot()
	if len(got) != 1 || got[0].Page.Greeting != "new" {
		t.Fatalf("expected only the newer load to render, got %+v", got)
	}
}

func TestDashboardView_ReloadIsBoundedByLoadTimeout(t *testing.T) {
	loader := &stubPageLoader{hang: true}
	frames := &frameRecorder{}
	view := newDashboardView(loader, testSession(), nil, frames.sink, nil, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- view.Activate(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hung load was not cut off by the load timeout")
	}

	got := frames.snapshot()
	if len(got) != 1 || got[0].Kind != FrameError {
		t.Fatalf("expected a single error frame, got %+v", got)
	}
	if !view.Active() {
		t.Fatalf("a failed load must keep the view mounted")
	}
}

func TestDashboardView_HungReloadsDoNotStallOtherUsers(t *testing.T) {
	hub, err := eventbus.NewHub(1)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	defer func() { _ = hub.Close(2 * time.Second) }()

	loader := &stubPageLoader{hang: true}
	frames := &frameRecorder{}
	view := newDashboardView(loader, testSession(), hub, frames.sink, nil, 100*time.Millisecond)
	if err := view.Activate(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected initial load to time out, got %v", err)
	}

	delivered := make(chan session.Event, 1)
	hub.Subscribe("u2", func(e session.Event) { delivered <- e })

	for i := 0; i < 2; i++ {
		if err := hub.Publish(context.Background(), session.Event{Kind: session.EventLeaguesChanged, UserID: "u1"}); err != nil {
			t.Fatalf("publish leagues changed: %v", err)
		}
	}

	published := make(chan error, 1)
	go func() {
		published <- hub.Publish(context.Background(), session.Event{Kind: session.EventSignedOut, UserID: "u2"})
	}()
	select {
	case err := <-published:
		if err != nil {
			t.Fatalf("publish sign-out: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("publish for another user blocked behind hung reloads")
	}

	select {
	case e := <-delivered:
		if e.Kind != session.EventSignedOut || e.UserID != "u2" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("sign-out for another user was never delivered")
	}

	deadline := time.Now().Add(2 * time.Second)
	for loader.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("event-driven reloads did not finish, calls=%d", loader.callCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	view.Deactivate()
}
