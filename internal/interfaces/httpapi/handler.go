package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
	"github.com/riskibarqy/porras-fc/internal/usecase"
)

const maxRequestBody = 64 << 10

type LiveConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	// AllowedOrigins limits websocket upgrades; empty accepts any origin.
	AllowedOrigins []string
}

type Handler struct {
	leagueService    *usecase.LeagueService
	dashboardService *usecase.DashboardService
	sessionService   *usecase.SessionService
	notifier         session.Notifier
	live             LiveConfig
	logger           *logging.Logger
	validator        *validator.Validate
}

func NewHandler(
	leagueService *usecase.LeagueService,
	dashboardService *usecase.DashboardService,
	sessionService *usecase.SessionService,
	notifier session.Notifier,
	live LiveConfig,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if live.PingInterval <= 0 {
		live.PingInterval = 30 * time.Second
	}
	if live.ReadTimeout <= live.PingInterval {
		live.ReadTimeout = live.PingInterval * 2
	}

	return &Handler{
		leagueService:    leagueService,
		dashboardService: dashboardService,
		sessionService:   sessionService,
		notifier:         notifier,
		live:             live,
		logger:           logger,
		validator:        validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decodeRequest(ctx context.Context, r *http.Request, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.decodeRequest")
	defer span.End()

	decoder := sonic.ConfigDefault.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(payload); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return h.validateRequest(ctx, payload)
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

func requireSession(ctx context.Context) (session.Session, error) {
	sess, ok := sessionFromContext(ctx)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: session is missing from request context", usecase.ErrUnauthenticated)
	}
	return sess, nil
}
