package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	idgen "github.com/riskibarqy/porras-fc/internal/platform/id"
)

type membershipKey struct {
	leagueID string
	userID   string
}

// LeagueRepository keeps leagues and memberships in memory. It enforces the same
// uniqueness rules as the Postgres schema: one league per code and one membership
// per (league, user).
type LeagueRepository struct {
	mu      sync.RWMutex
	items   map[string]league.League
	byCode  map[string]string
	members map[membershipKey]league.Membership

	atomicIDs idgen.Generator
	now       func() time.Time
}

type LeagueOption func(*LeagueRepository)

// WithAtomicCreate enables CreateWithMember, issuing league ids from ids.
func WithAtomicCreate(ids idgen.Generator) LeagueOption {
	return func(r *LeagueRepository) {
		r.atomicIDs = ids
	}
}

func WithNow(now func() time.Time) LeagueOption {
	return func(r *LeagueRepository) {
		if now != nil {
			r.now = now
		}
	}
}

func NewLeagueRepository(opts ...LeagueOption) *LeagueRepository {
	r := &LeagueRepository{
		items:   make(map[string]league.League),
		byCode:  make(map[string]string),
		members: make(map[membershipKey]league.Membership),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LeagueRepository) Create(_ context.Context, item league.League) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validate league: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(item)
}

func (r *LeagueRepository) createLocked(item league.League) error {
	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("league %s already exists", item.ID)
	}
	if _, taken := r.byCode[item.Code]; taken {
		return fmt.Errorf("%w: %s", league.ErrDuplicateCode, item.Code)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now().UTC()
	}
	item.Description = cloneString(item.Description)

	r.items[item.ID] = item
	r.byCode[item.Code] = item.ID
	return nil
}

func (r *LeagueRepository) GetByID(_ context.Context, leagueID string) (league.League, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[leagueID]
	if !ok {
		return league.League{}, false, nil
	}
	return cloneLeague(item), true, nil
}

func (r *LeagueRepository) GetByCode(_ context.Context, code string) (league.League, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	leagueID, ok := r.byCode[code]
	if !ok {
		return league.League{}, false, nil
	}
	return cloneLeague(r.items[leagueID]), true, nil
}

// AddMember does not check that the league exists; the two tables are only
// correlated by league id.
func (r *LeagueRepository) AddMember(_ context.Context, membership league.Membership) error {
	if err := membership.Validate(); err != nil {
		return fmt.Errorf("validate membership: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addMemberLocked(membership)
}

func (r *LeagueRepository) addMemberLocked(membership league.Membership) error {
	key := membershipKey{leagueID: membership.LeagueID, userID: membership.UserID}
	if _, exists := r.members[key]; exists {
		return fmt.Errorf("%w: league=%s user=%s", league.ErrDuplicateMembership, membership.LeagueID, membership.UserID)
	}
	if membership.JoinedAt.IsZero() {
		membership.JoinedAt = r.now().UTC()
	}
	r.members[key] = membership
	return nil
}

func (r *LeagueRepository) GetMembership(_ context.Context, leagueID, userID string) (league.Membership, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[membershipKey{leagueID: leagueID, userID: userID}]
	return m, ok, nil
}

func (r *LeagueRepository) ListByMember(_ context.Context, userID string) ([]league.MemberLeague, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]league.MemberLeague, 0)
	for key, m := range r.members {
		if key.userID != userID {
			continue
		}
		item, ok := r.items[key.leagueID]
		if !ok {
			continue
		}
		out = append(out, league.MemberLeague{
			League:   cloneLeague(item),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].League.ID < out[j].League.ID
	})
	return out, nil
}

func (r *LeagueRepository) ListMembers(_ context.Context, leagueID string) ([]league.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]league.Membership, 0)
	for key, m := range r.members {
		if key.leagueID == leagueID {
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *LeagueRepository) CountMembers(_ context.Context, leagueID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key := range r.members {
		if key.leagueID == leagueID {
			count++
		}
	}
	return count, nil
}

func (r *LeagueRepository) CreateWithMember(_ context.Context, name, code string, description *string, ownerID string) (string, error) {
	if r.atomicIDs == nil {
		return "", league.ErrProcedureUnavailable
	}

	leagueID, err := r.atomicIDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate league id: %w", err)
	}
	now := r.now().UTC()
	item := league.League{
		ID:          leagueID,
		Name:        name,
		Description: description,
		Code:        code,
		OwnerID:     ownerID,
		CreatedAt:   now,
	}
	if err := item.Validate(); err != nil {
		return "", fmt.Errorf("validate league: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.createLocked(item); err != nil {
		return "", err
	}
	if err := r.addMemberLocked(league.Membership{LeagueID: leagueID, UserID: ownerID, Role: league.RoleAdmin, JoinedAt: now}); err != nil {
		delete(r.items, leagueID)
		delete(r.byCode, code)
		return "", err
	}
	return leagueID, nil
}

func (r *LeagueRepository) SupportsCreateWithMember(context.Context) (bool, error) {
	return r.atomicIDs != nil, nil
}

func cloneLeague(item league.League) league.League {
	item.Description = cloneString(item.Description)
	return item
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
