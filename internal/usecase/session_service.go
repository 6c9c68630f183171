package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/domain/user"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

// SessionProvider is the account service that issued the caller's access token.
type SessionProvider interface {
	VerifyAccessToken(ctx context.Context, token string) (user.Principal, error)
	RevokeAccessToken(ctx context.Context, token string) error
}

type SessionService struct {
	provider SessionProvider
	notifier session.Notifier
	clock    clockwork.Clock
	logger   *logging.Logger
}

func NewSessionService(provider SessionProvider, notifier session.Notifier, clock clockwork.Clock, logger *logging.Logger) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionService{
		provider: provider,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Resolve verifies token and returns the session it belongs to.
func (s *SessionService) Resolve(ctx context.Context, token string) (session.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SessionService.Resolve")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return session.Session{}, fmt.Errorf("%w: access token is required", ErrUnauthenticated)
	}

	principal, err := s.provider.VerifyAccessToken(ctx, token)
	if err != nil {
		return session.Session{}, err
	}
	if strings.TrimSpace(principal.UserID) == "" {
		return session.Session{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	return session.Session{ID: SessionID(token), Principal: principal}, nil
}

// SignOut revokes the session's token, tells every view of the session, and returns
// the path the client should navigate to.
func (s *SessionService) SignOut(ctx context.Context, sess session.Session, token string) (string, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SessionService.SignOut")
	defer span.End()

	if err := s.provider.RevokeAccessToken(ctx, strings.TrimSpace(token)); err != nil {
		return "", newServiceError("revoke access token", err)
	}

	if s.notifier != nil {
		err := s.notifier.Publish(context.WithoutCancel(ctx), session.Event{
			Kind:      session.EventSignedOut,
			UserID:    sess.UserID(),
			SessionID: sess.ID,
			At:        s.clock.Now().UTC(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "publish sign-out failed", "user_id", sess.UserID(), "error", err)
		}
	}

	s.logger.InfoContext(ctx, "signed out", "user_id", sess.UserID())
	return HomePath, nil
}

// SessionID derives a stable, non-reversible session id from an access token.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}
