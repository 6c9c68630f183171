package postgres

import (
	"database/sql"
	"time"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
)

const (
	leaguesTable       = "leagues"
	leagueMembersTable = "league_members"

	createLeagueFunction = "create_league_with_member"

	leagueCodeConstraint       = "leagues_code_key"
	leagueMemberUserConstraint = "league_members_league_user_key"
)

type leagueTableModel struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Code        string         `db:"code"`
	OwnerID     string         `db:"owner_id"`
	CreatedAt   time.Time      `db:"created_at,readonly"`
}

type leagueMemberTableModel struct {
	ID       int64     `db:"id,readonly"`
	LeagueID string    `db:"league_id"`
	UserID   string    `db:"user_id"`
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}

type memberLeagueRow struct {
	leagueTableModel
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}

func leagueToModel(item league.League) leagueTableModel {
	model := leagueTableModel{
		ID:      item.ID,
		Name:    item.Name,
		Code:    item.Code,
		OwnerID: item.OwnerID,
	}
	if item.Description != nil {
		model.Description = sql.NullString{String: *item.Description, Valid: true}
	}
	return model
}

func (m leagueTableModel) toDomain() league.League {
	out := league.League{
		ID:        m.ID,
		Name:      m.Name,
		Code:      m.Code,
		OwnerID:   m.OwnerID,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.Description.Valid {
		description := m.Description.String
		out.Description = &description
	}
	return out
}

func membershipToModel(m league.Membership) leagueMemberTableModel {
	return leagueMemberTableModel{
		LeagueID: m.LeagueID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

func (m leagueMemberTableModel) toDomain() league.Membership {
	return league.Membership{
		LeagueID: m.LeagueID,
		UserID:   m.UserID,
		Role:     league.Role(m.Role),
		JoinedAt: m.JoinedAt.UTC(),
	}
}

func (r memberLeagueRow) toDomain() league.MemberLeague {
	return league.MemberLeague{
		League:   r.leagueTableModel.toDomain(),
		Role:     league.Role(r.Role),
		JoinedAt: r.JoinedAt.UTC(),
	}
}
