package httpapi

import (
	"net/http"
)

type sessionDTO struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type redirectDTO struct {
	Redirect string `json:"redirect"`
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetSession")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, sessionDTO{
		SessionID:   sess.ID,
		UserID:      sess.UserID(),
		Email:       sess.Principal.Email,
		DisplayName: sess.Principal.DisplayName,
	})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SignOut")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	location, err := h.sessionService.SignOut(ctx, sess, accessTokenFromContext(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "sign out failed", "user_id", sess.UserID(), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, redirectDTO{Redirect: location})
}
