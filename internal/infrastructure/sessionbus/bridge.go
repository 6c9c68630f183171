package sessionbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

const DefaultSubject = "porras.session.events"

// Conn is the subset of *nats.Conn used by the bridge.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type envelope struct {
	Origin string        `json:"origin"`
	Event  session.Event `json:"event"`
}

// Bridge relays session events between service instances over NATS.
// Events are delivered to the local notifier right away and published for the other
// instances; messages that carry this instance's origin are ignored on receipt.
type Bridge struct {
	conn    Conn
	subject string
	origin  string
	local   session.Notifier
	logger  *logging.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewBridge(conn Conn, subject, origin string, local session.Notifier, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Default()
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &Bridge{
		conn:    conn,
		subject: subject,
		origin:  origin,
		local:   local,
		logger:  logger.Named("sessionbus"),
	}
}

// Start subscribes to the shared subject.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}

	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		b.receive(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.sub = sub
	return nil
}

func (b *Bridge) Publish(ctx context.Context, event session.Event) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}

	payload, err := sonic.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		b.logger.WarnContext(ctx, "relay session event failed",
			"kind", string(event.Kind),
			"user_id", event.UserID,
			"error", err,
		)
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

func (b *Bridge) Subscribe(userID string, handler session.Handler) session.Subscription {
	return b.local.Subscribe(userID, handler)
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}

func (b *Bridge) receive(data []byte) {
	var msg envelope
	if err := sonic.Unmarshal(data, &msg); err != nil {
		b.logger.Warn("drop malformed session event", "error", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}
	if err := b.local.Publish(context.Background(), msg.Event); err != nil {
		b.logger.Warn("deliver relayed session event failed", "kind", string(msg.Event.Kind), "error", err)
	}
}

// Connect dials NATS with reconnects enabled and connection state logged.
func Connect(url, name string, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}
