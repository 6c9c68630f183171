package cache

import (
	"context"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	basecache "github.com/riskibarqy/porras-fc/internal/platform/cache"
)

// LeagueRepository is a read-through cache over a league store. Writes made through
// it invalidate the keys they affect; writes made elsewhere are only seen after the TTL.
// Memberships are never cached.
type LeagueRepository struct {
	next  league.Store
	cache *basecache.Store
}

func NewLeagueRepository(next league.Store, cache *basecache.Store) *LeagueRepository {
	return &LeagueRepository{next: next, cache: cache}
}

type cachedLeague struct {
	value  league.League
	exists bool
}

func (r *LeagueRepository) Create(ctx context.Context, item league.League) error {
	if err := r.next.Create(ctx, item); err != nil {
		return err
	}
	r.cache.Delete(ctx, leagueIDKey(item.ID), leagueCodeKey(item.Code))
	return nil
}

func (r *LeagueRepository) GetByID(ctx context.Context, leagueID string) (league.League, bool, error) {
	return r.getLeague(ctx, leagueIDKey(leagueID), func(ctx context.Context) (league.League, bool, error) {
		return r.next.GetByID(ctx, leagueID)
	})
}

func (r *LeagueRepository) GetByCode(ctx context.Context, code string) (league.League, bool, error) {
	return r.getLeague(ctx, leagueCodeKey(code), func(ctx context.Context) (league.League, bool, error) {
		return r.next.GetByCode(ctx, code)
	})
}

func (r *LeagueRepository) getLeague(ctx context.Context, key string, load func(context.Context) (league.League, bool, error)) (league.League, bool, error) {
	v, err := r.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		item, exists, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return cachedLeague{value: item, exists: exists}, nil
	})
	if err != nil {
		return league.League{}, false, err
	}

	cached, _ := v.(cachedLeague)
	return cloneLeague(cached.value), cached.exists, nil
}

func (r *LeagueRepository) AddMember(ctx context.Context, membership league.Membership) error {
	if err := r.next.AddMember(ctx, membership); err != nil {
		return err
	}
	r.invalidateMembership(ctx, membership.LeagueID, membership.UserID)
	return nil
}

func (r *LeagueRepository) GetMembership(ctx context.Context, leagueID, userID string) (league.Membership, bool, error) {
	return r.next.GetMembership(ctx, leagueID, userID)
}

func (r *LeagueRepository) ListByMember(ctx context.Context, userID string) ([]league.MemberLeague, error) {
	v, err := r.cache.GetOrLoad(ctx, memberLeaguesKey(userID), func(ctx context.Context) (any, error) {
		return r.next.ListByMember(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	items, _ := v.([]league.MemberLeague)
	out := make([]league.MemberLeague, 0, len(items))
	for _, item := range items {
		item.League = cloneLeague(item.League)
		out = append(out, item)
	}
	return out, nil
}

func (r *LeagueRepository) ListMembers(ctx context.Context, leagueID string) ([]league.Membership, error) {
	v, err := r.cache.GetOrLoad(ctx, leagueMembersKey(leagueID), func(ctx context.Context) (any, error) {
		return r.next.ListMembers(ctx, leagueID)
	})
	if err != nil {
		return nil, err
	}

	items, _ := v.([]league.Membership)
	return append([]league.Membership(nil), items...), nil
}

func (r *LeagueRepository) CountMembers(ctx context.Context, leagueID string) (int, error) {
	v, err := r.cache.GetOrLoad(ctx, memberCountKey(leagueID), func(ctx context.Context) (any, error) {
		return r.next.CountMembers(ctx, leagueID)
	})
	if err != nil {
		return 0, err
	}

	count, _ := v.(int)
	return count, nil
}

func (r *LeagueRepository) CreateWithMember(ctx context.Context, name, code string, description *string, ownerID string) (string, error) {
	leagueID, err := r.next.CreateWithMember(ctx, name, code, description, ownerID)
	if err != nil {
		return "", err
	}
	r.cache.Delete(ctx, leagueIDKey(leagueID), leagueCodeKey(code))
	r.invalidateMembership(ctx, leagueID, ownerID)
	return leagueID, nil
}

func (r *LeagueRepository) SupportsCreateWithMember(ctx context.Context) (bool, error) {
	return r.next.SupportsCreateWithMember(ctx)
}

func (r *LeagueRepository) invalidateMembership(ctx context.Context, leagueID, userID string) {
	r.cache.Delete(ctx,
		memberLeaguesKey(userID),
		leagueMembersKey(leagueID),
		memberCountKey(leagueID),
	)
}

func leagueIDKey(leagueID string) string {
	return "league:id:" + leagueID
}

func leagueCodeKey(code string) string {
	return "league:code:" + code
}

func memberLeaguesKey(userID string) string {
	return "league:member:" + userID
}

func leagueMembersKey(leagueID string) string {
	return "league:members:" + leagueID
}

func memberCountKey(leagueID string) string {
	return "league:count:" + leagueID
}

func cloneLeague(item league.League) league.League {
	if item.Description != nil {
		description := *item.Description
		item.Description = &description
	}
	return item
}
