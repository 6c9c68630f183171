package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

// Hub fans session events out to in-process subscribers keyed by user id.
// With a worker pool, handlers run on pool goroutines and Publish never waits for a free
// worker: when the pool is saturated the handler gets its own goroutine. Without a pool
// handlers run inline on Publish.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]session.Handler
	nextID uint64

	pool   *ants.Pool
	clock  clockwork.Clock
	logger *logging.Logger
}

type Option func(*Hub)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a hub dispatching through a pool of workers; workers <= 0 dispatches inline.
func NewHub(workers int, opts ...Option) (*Hub, error) {
	h := &Hub{
		subs:   make(map[string]map[uint64]session.Handler),
		clock:  clockwork.NewRealClock(),
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("eventbus")

	if workers > 0 {
		pool, err := ants.NewPool(workers,
			ants.WithNonblocking(true),
			ants.WithPanicHandler(func(v any) {
				h.logger.Error("session event handler panicked", "panic", fmt.Sprint(v))
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("create event worker pool: %w", err)
		}
		h.pool = pool
	}
	return h, nil
}

func (h *Hub) Publish(ctx context.Context, event session.Event) error {
	if event.UserID == "" {
		return fmt.Errorf("session event %q has no user id", event.Kind)
	}
	if event.At.IsZero() {
		event.At = h.clock.Now().UTC()
	}

	h.mu.RLock()
	handlers := make([]session.Handler, 0, len(h.subs[event.UserID]))
	for _, handler := range h.subs[event.UserID] {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	h.logger.DebugContext(ctx, "dispatch session event",
		"kind", string(event.Kind),
		"user_id", event.UserID,
		"subscribers", len(handlers),
	)

	for _, handler := range handlers {
		handler := handler
		if h.pool == nil {
			h.invokeRecovered(handler, event)
			continue
		}
		err := h.pool.Submit(func() { handler(event) })
		if errors.Is(err, ants.ErrPoolOverload) {
			h.logger.WarnContext(ctx, "event pool saturated, dispatching outside the pool",
				"kind", string(event.Kind),
				"user_id", event.UserID,
				"running", h.pool.Running(),
			)
			go h.invokeRecovered(handler, event)
			continue
		}
		if err != nil {
			return fmt.Errorf("submit session event: %w", err)
		}
	}
	return nil
}

func (h *Hub) Subscribe(userID string, handler session.Handler) session.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]session.Handler)
	}
	h.subs[userID][id] = handler

	return &subscription{hub: h, userID: userID, id: id}
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close waits up to timeout for in-flight handlers and releases the pool.
func (h *Hub) Close(timeout time.Duration) error {
	if h.pool == nil {
		return nil
	}
	return h.pool.ReleaseTimeout(timeout)
}

func (h *Hub) invokeRecovered(handler session.Handler, event session.Event) {
	defer func() {
		if v := recover(); v != nil {
			h.logger.Error("session event handler panicked", "panic", fmt.Sprint(v), "kind", string(event.Kind))
		}
	}()
	handler(event)
}

func (h *Hub) remove(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID := h.subs[userID]
	delete(byID, id)
	if len(byID) == 0 {
		delete(h.subs, userID)
	}
}

type subscription struct {
	hub    *Hub
	userID string
	id     uint64
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.hub.remove(s.userID, s.id) })
}
