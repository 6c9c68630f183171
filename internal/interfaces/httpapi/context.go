package httpapi

import (
	"context"

	"github.com/riskibarqy/porras-fc/internal/domain/session"
)

type contextKey string

const (
	sessionContextKey     contextKey = "auth_session"
	accessTokenContextKey contextKey = "auth_access_token"
)

func withSession(ctx context.Context, sess session.Session, token string) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, sess)
	return context.WithValue(ctx, accessTokenContextKey, token)
}

func sessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(session.Session)
	return sess, ok
}

func accessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenContextKey).(string)
	return token
}
