package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
	"github.com/riskibarqy/porras-fc/internal/usecase"
)

const (
	liveWriteWait      = 10 * time.Second
	liveMaxMessageSize = 4 << 10
	liveSendBuffer     = 16
)

type dashboardDTO struct {
	Greeting string             `json:"greeting"`
	Empty    bool               `json:"empty"`
	Cards    []dashboardCardDTO `json:"cards"`
}

type dashboardCardDTO struct {
	LeagueID    string      `json:"league_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Code        string      `json:"code"`
	Href        string      `json:"href"`
	Role        league.Role `json:"role"`
	MemberCount int         `json:"member_count"`
	JoinedAt    time.Time   `json:"joined_at"`
}

type liveFrame struct {
	Type     string        `json:"type"`
	Data     *dashboardDTO `json:"data,omitempty"`
	Location string        `json:"location,omitempty"`
	Message  string        `json:"message,omitempty"`
}

type liveInbound struct {
	Type string `json:"type"`
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetDashboard")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	page, err := h.dashboardService.Page(ctx, sess.Principal)
	if err != nil {
		h.logger.WarnContext(ctx, "get dashboard failed", "user_id", sess.UserID(), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, dashboardToDTO(page))
}

// LiveDashboard mounts a dashboard view on a websocket. The view pushes a new page
// whenever the user's leagues change and a redirect when the session ends.
func (h *Handler) LiveDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LiveDashboard")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkLiveOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "upgrade live dashboard failed", "user_id", sess.UserID(), "error", err)
		return
	}

	viewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	client := newLiveClient(conn, h.live, h.logger.With("user_id", sess.UserID()))
	go client.writePump()

	view := h.dashboardService.NewView(&sess, h.notifier, client.enqueue)
	if err := view.Activate(viewCtx); err != nil {
		h.logger.WarnContext(ctx, "activate live dashboard failed", "user_id", sess.UserID(), "error", err)
	}

	client.readPump(viewCtx, view.Reload)

	view.Deactivate()
	client.shutdown()
}

func (h *Handler) checkLiveOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.live.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.live.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type liveMessage struct {
	payload []byte
	final   bool
}

type liveClient struct {
	conn         *websocket.Conn
	send         chan liveMessage
	done         chan struct{}
	once         sync.Once
	pingInterval time.Duration
	readTimeout  time.Duration
	logger       *logging.Logger
}

func newLiveClient(conn *websocket.Conn, cfg LiveConfig, logger *logging.Logger) *liveClient {
	return &liveClient{
		conn:         conn,
		send:         make(chan liveMessage, liveSendBuffer),
		done:         make(chan struct{}),
		pingInterval: cfg.PingInterval,
		readTimeout:  cfg.ReadTimeout,
		logger:       logger,
	}
}

// enqueue is the view's sink. It runs under the view lock, so it never blocks:
// a client that cannot keep up is disconnected.
func (c *liveClient) enqueue(frame usecase.DashboardFrame) {
	payload, err := encodeLiveFrame(frame)
	if err != nil {
		c.logger.Error("encode live dashboard frame failed", "error", err)
		return
	}

	msg := liveMessage{payload: payload, final: frame.Kind == usecase.FrameRedirect}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("live dashboard client too slow, disconnecting")
		c.shutdown()
	}
}

func (c *liveClient) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				return
			}
			if msg.final {
				c.writeClose("session ended")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.writeClose("")
			return
		}
	}
}

func (c *liveClient) writeClose(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
}

func (c *liveClient) readPump(ctx context.Context, reload func(context.Context) error) {
	c.conn.SetReadLimit(liveMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("live dashboard read failed", "error", err)
			}
			return
		}

		var msg liveInbound
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "reload" {
			if err := reload(ctx); err != nil {
				c.logger.WarnContext(ctx, "live dashboard reload failed", "error", err)
			}
		}
	}
}

func encodeLiveFrame(frame usecase.DashboardFrame) ([]byte, error) {
	out := liveFrame{Type: string(frame.Kind)}
	switch frame.Kind {
	case usecase.FrameDashboard:
		page := dashboardToDTO(frame.Page)
		out.Data = &page
	case usecase.FrameRedirect:
		out.Location = frame.Location
	case usecase.FrameError:
		out.Message = frame.Message
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(out); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

func dashboardToDTO(page usecase.DashboardPage) dashboardDTO {
	cards := make([]dashboardCardDTO, 0, len(page.Cards))
	for _, card := range page.Cards {
		cards = append(cards, dashboardCardDTO{
			LeagueID:    card.LeagueID,
			Name:        card.Name,
			Description: card.Description,
			Code:        card.Code,
			Href:        card.Href,
			Role:        card.Role,
			MemberCount: card.MemberCount,
			JoinedAt:    card.JoinedAt,
		})
	}
	return dashboardDTO{
		Greeting: page.Greeting,
		Empty:    page.Empty,
		Cards:    cards,
	}
}
