package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	qb "github.com/riskibarqy/porras-fc/internal/platform/querybuilder"
)

type LeagueRepository struct {
	db *sqlx.DB
}

func NewLeagueRepository(db *sqlx.DB) *LeagueRepository {
	return &LeagueRepository{db: db}
}

func (r *LeagueRepository) Create(ctx context.Context, item league.League) error {
	query, args, err := qb.InsertModel(leaguesTable, leagueToModel(item), "")
	if err != nil {
		return fmt.Errorf("build create league query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classifyError("create league", err)
	}
	return nil
}

func (r *LeagueRepository) GetByID(ctx context.Context, leagueID string) (league.League, bool, error) {
	return r.getOne(ctx, "get league by id", qb.Eq("id", leagueID))
}

func (r *LeagueRepository) GetByCode(ctx context.Context, code string) (league.League, bool, error) {
	return r.getOne(ctx, "get league by code", qb.Eq("code", code))
}

func (r *LeagueRepository) getOne(ctx context.Context, op string, cond qb.Condition) (league.League, bool, error) {
	query, args, err := qb.Select(qb.Columns(leagueTableModel{}, "")...).
		From(leaguesTable).
		Where(cond).
		Limit(1).
		ToSQL()
	if err != nil {
		return league.League{}, false, fmt.Errorf("build %s query: %w", op, err)
	}

	var row leagueTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) || isMalformedID(err) {
			return league.League{}, false, nil
		}
		return league.League{}, false, classifyError(op, err)
	}
	return row.toDomain(), true, nil
}

func (r *LeagueRepository) AddMember(ctx context.Context, membership league.Membership) error {
	query, args, err := qb.InsertModel(leagueMembersTable, membershipToModel(membership), "")
	if err != nil {
		return fmt.Errorf("build add league member query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classifyError("add league member", err)
	}
	return nil
}

func (r *LeagueRepository) GetMembership(ctx context.Context, leagueID, userID string) (league.Membership, bool, error) {
	query, args, err := qb.Select(qb.Columns(leagueMemberTableModel{}, "")...).
		From(leagueMembersTable).
		Where(qb.Eq("league_id", leagueID), qb.Eq("user_id", userID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return league.Membership{}, false, fmt.Errorf("build get league membership query: %w", err)
	}

	var row leagueMemberTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) || isMalformedID(err) {
			return league.Membership{}, false, nil
		}
		return league.Membership{}, false, classifyError("get league membership", err)
	}
	return row.toDomain(), true, nil
}

func (r *LeagueRepository) ListByMember(ctx context.Context, userID string) ([]league.MemberLeague, error) {
	columns := append(qb.Columns(leagueTableModel{}, "l"), "m.role", "m.joined_at")
	query, args, err := qb.Select(columns...).
		From(leagueMembersTable+" m").
		Join(leaguesTable+" l", "l.id = m.league_id").
		Where(qb.Eq("m.user_id", userID)).
		OrderBy("m.joined_at DESC", "l.id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list leagues by member query: %w", err)
	}

	var rows []memberLeagueRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyError("list leagues by member", err)
	}

	out := make([]league.MemberLeague, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *LeagueRepository) ListMembers(ctx context.Context, leagueID string) ([]league.Membership, error) {
	query, args, err := qb.Select(qb.Columns(leagueMemberTableModel{}, "")...).
		From(leagueMembersTable).
		Where(qb.Eq("league_id", leagueID)).
		OrderBy("joined_at", "user_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list league members query: %w", err)
	}

	var rows []leagueMemberTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyError("list league members", err)
	}

	out := make([]league.Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *LeagueRepository) CountMembers(ctx context.Context, leagueID string) (int, error) {
	query, args, err := qb.Select("COUNT(*)").
		From(leagueMembersTable).
		Where(qb.Eq("league_id", leagueID)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count league members query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, classifyError("count league members", err)
	}
	return count, nil
}

// CreateWithMember calls create_league_with_member, which inserts the league and
// the owner's ADMIN membership in one transaction.
func (r *LeagueRepository) CreateWithMember(ctx context.Context, name, code string, description *string, ownerID string) (string, error) {
	query, args, err := qb.Call(createLeagueFunction, name, code, description, ownerID)
	if err != nil {
		return "", fmt.Errorf("build create league with member query: %w", err)
	}

	var leagueID string
	if err := r.db.GetContext(ctx, &leagueID, query, args...); err != nil {
		return "", classifyError("create league with member", err)
	}
	return leagueID, nil
}

func (r *LeagueRepository) SupportsCreateWithMember(ctx context.Context) (bool, error) {
	inner, args, err := qb.Select("1").
		From("pg_proc").
		Where(qb.Eq("proname", createLeagueFunction)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build procedure probe query: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS ("+inner+")", args...); err != nil {
		return false, classifyError("probe create league procedure", err)
	}
	return exists, nil
}
