package httpapi

import (
	"net/http"
	"time"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	"github.com/riskibarqy/porras-fc/internal/usecase"
)

type createLeagueRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type joinLeagueRequest struct {
	Code string `json:"code" validate:"max=32"`
}

type leagueDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Code        string    `json:"code"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	Href        string    `json:"href"`
}

type createLeagueResponse struct {
	League   leagueDTO `json:"league"`
	Strategy string    `json:"strategy"`
}

type memberLeagueDTO struct {
	leagueDTO
	Role     league.Role `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

type leagueDetailDTO struct {
	memberLeagueDTO
	MemberCount int `json:"member_count"`
}

type membershipDTO struct {
	UserID   string      `json:"user_id"`
	Role     league.Role `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

func (h *Handler) CreateLeague(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateLeague")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req createLeagueRequest
	if err := h.decodeRequest(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.leagueService.CreateLeague(ctx, usecase.CreateLeagueInput{
		UserID:      sess.UserID(),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create league failed", "user_id", sess.UserID(), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, createLeagueResponse{
		League:   leagueToDTO(result.League),
		Strategy: result.Strategy,
	})
}

func (h *Handler) JoinLeague(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.JoinLeague")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req joinLeagueRequest
	if err := h.decodeRequest(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	joined, err := h.leagueService.JoinLeague(ctx, usecase.JoinLeagueInput{
		UserID: sess.UserID(),
		Code:   req.Code,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "join league failed", "user_id", sess.UserID(), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, leagueToDTO(joined))
}

func (h *Handler) ListMyLeagues(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListMyLeagues")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	items, err := h.dashboardService.ListMyLeagues(ctx, sess.UserID())
	if err != nil {
		h.logger.WarnContext(ctx, "list my leagues failed", "user_id", sess.UserID(), "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]memberLeagueDTO, 0, len(items))
	for _, item := range items {
		out = append(out, memberLeagueDTO{
			leagueDTO: leagueToDTO(item.League),
			Role:      item.Role,
			JoinedAt:  item.JoinedAt,
		})
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}

func (h *Handler) GetLeague(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetLeague")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	leagueID := r.PathValue("leagueID")
	detail, err := h.leagueService.GetLeague(ctx, sess.UserID(), leagueID)
	if err != nil {
		h.logger.WarnContext(ctx, "get league failed", "user_id", sess.UserID(), "league_id", leagueID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, leagueDetailDTO{
		memberLeagueDTO: memberLeagueDTO{
			leagueDTO: leagueToDTO(detail.League),
			Role:      detail.Role,
			JoinedAt:  detail.JoinedAt,
		},
		MemberCount: detail.MemberCount,
	})
}

func (h *Handler) ListLeagueMembers(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListLeagueMembers")
	defer span.End()

	sess, err := requireSession(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	leagueID := r.PathValue("leagueID")
	members, err := h.leagueService.ListMembers(ctx, sess.UserID(), leagueID)
	if err != nil {
		h.logger.WarnContext(ctx, "list league members failed", "user_id", sess.UserID(), "league_id", leagueID, "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]membershipDTO, 0, len(members))
	for _, m := range members {
		out = append(out, membershipDTO{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}

func leagueToDTO(item league.League) leagueDTO {
	return leagueDTO{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Code:        item.Code,
		OwnerID:     item.OwnerID,
		CreatedAt:   item.CreatedAt,
		Href:        usecase.LeagueHref(item.ID),
	}
}
