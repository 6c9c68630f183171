package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

const defaultMaxCodeAttempts = 3

type CreateLeagueInput struct {
	UserID      string
	Name        string
	Description string
}

type CreateLeagueResult struct {
	League   league.League
	Strategy string
}

type JoinLeagueInput struct {
	UserID string
	Code   string
}

type LeagueDetail struct {
	League      league.League
	Role        league.Role
	JoinedAt    time.Time
	MemberCount int
}

type LeagueServiceConfig struct {
	// MaxCodeAttempts bounds invite-code regeneration after a collision. 1 disables retrying.
	MaxCodeAttempts int
	// OperationTimeout bounds each workflow; zero leaves the caller's deadline alone.
	OperationTimeout time.Duration
}

type LeagueService struct {
	repo        league.Repository
	provisioner LeagueProvisioner
	codes       InviteCodeGenerator
	notifier    session.Notifier
	clock       clockwork.Clock
	logger      *logging.Logger
	cfg         LeagueServiceConfig
}

func NewLeagueService(
	repo league.Repository,
	provisioner LeagueProvisioner,
	codes InviteCodeGenerator,
	notifier session.Notifier,
	clock clockwork.Clock,
	logger *logging.Logger,
	cfg LeagueServiceConfig,
) *LeagueService {
	if codes == nil {
		codes = NewRandomCodeGenerator()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxCodeAttempts < 1 {
		cfg.MaxCodeAttempts = defaultMaxCodeAttempts
	}

	return &LeagueService{
		repo:        repo,
		provisioner: provisioner,
		codes:       codes,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
		cfg:         cfg,
	}
}

// CreateLeague stores a league owned by the caller and returns it with its invite code.
func (s *LeagueService) CreateLeague(ctx context.Context, input CreateLeagueInput) (CreateLeagueResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueService.CreateLeague")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input.UserID = strings.TrimSpace(input.UserID)
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.UserID == "" {
		return CreateLeagueResult{}, fmt.Errorf("%w: session is required to create a league", ErrUnauthenticated)
	}
	if err := league.ValidateName(input.Name); err != nil {
		return CreateLeagueResult{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	draft := LeagueDraft{
		Name:    input.Name,
		OwnerID: input.UserID,
	}
	if input.Description != "" {
		description := input.Description
		draft.Description = &description
	}

	var (
		result ProvisionResult
		err    error
	)
	for attempt := 1; attempt <= s.cfg.MaxCodeAttempts; attempt++ {
		draft.Code, err = s.codes.NewCode()
		if err != nil {
			return CreateLeagueResult{}, fmt.Errorf("generate invite code: %w", err)
		}

		result, err = s.provisioner.Provision(ctx, draft)
		if err == nil || !errors.Is(err, league.ErrDuplicateCode) {
			break
		}
		s.logger.WarnContext(ctx, "invite code collision",
			"code", draft.Code,
			"attempt", attempt,
			"max_attempts", s.cfg.MaxCodeAttempts,
		)
	}
	if err != nil {
		return CreateLeagueResult{}, newServiceError("create league", err)
	}

	created := s.storedLeague(ctx, result.LeagueID, draft)
	s.logger.InfoContext(ctx, "league created",
		"league_id", created.ID,
		"owner_id", created.OwnerID,
		"strategy", result.Strategy,
	)
	s.leaguesChanged(ctx, input.UserID, created.ID)

	return CreateLeagueResult{League: created, Strategy: result.Strategy}, nil
}

// storedLeague reads the league back so created_at is the value the store assigned.
// The write is already committed, so a failed read falls back to the draft.
func (s *LeagueService) storedLeague(ctx context.Context, leagueID string, draft LeagueDraft) league.League {
	stored, ok, err := s.repo.GetByID(ctx, leagueID)
	if err == nil && ok {
		return stored
	}
	s.logger.WarnContext(ctx, "read back created league failed",
		"league_id", leagueID,
		"found", ok,
		"error", err,
	)
	return league.League{
		ID:          leagueID,
		Name:        draft.Name,
		Description: draft.Description,
		Code:        draft.Code,
		OwnerID:     draft.OwnerID,
		CreatedAt:   s.clock.Now().UTC(),
	}
}

// JoinLeague adds the caller to the league holding code as a MEMBER.
func (s *LeagueService) JoinLeague(ctx context.Context, input JoinLeagueInput) (league.League, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueService.JoinLeague")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input.UserID = strings.TrimSpace(input.UserID)
	input.Code = league.NormalizeCode(input.Code)
	if input.UserID == "" {
		return league.League{}, fmt.Errorf("%w: session is required to join a league", ErrUnauthenticated)
	}
	if input.Code == "" {
		return league.League{}, fmt.Errorf("%w: code is required", ErrInvalidCode)
	}

	item, exists, err := s.repo.GetByCode(ctx, input.Code)
	if err != nil {
		return league.League{}, newServiceError("get league by code", err)
	}
	if !exists {
		return league.League{}, fmt.Errorf("%w: %s", ErrInvalidCode, input.Code)
	}

	_, member, err := s.repo.GetMembership(ctx, item.ID, input.UserID)
	if err != nil {
		return league.League{}, newServiceError("get league membership", err)
	}
	if member {
		return league.League{}, fmt.Errorf("%w: %s", ErrAlreadyMember, item.Name)
	}

	// The existence check above is not atomic with this insert; the store's
	// (league_id, user_id) unique key rejects a concurrent second join.
	err = s.repo.AddMember(ctx, league.Membership{
		LeagueID: item.ID,
		UserID:   input.UserID,
		Role:     league.RoleMember,
		JoinedAt: s.clock.Now().UTC(),
	})
	if errors.Is(err, league.ErrDuplicateMembership) {
		return league.League{}, fmt.Errorf("%w: %s", ErrAlreadyMember, item.Name)
	}
	if err != nil {
		return league.League{}, newServiceError("add league member", err)
	}

	s.logger.InfoContext(ctx, "league joined", "league_id", item.ID, "user_id", input.UserID)
	s.leaguesChanged(ctx, input.UserID, item.ID)
	return item, nil
}

// GetLeague returns a league the caller belongs to.
func (s *LeagueService) GetLeague(ctx context.Context, userID, leagueID string) (LeagueDetail, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueService.GetLeague")
	defer span.End()

	item, membership, err := s.memberLeague(ctx, userID, leagueID)
	if err != nil {
		return LeagueDetail{}, err
	}

	count, err := s.repo.CountMembers(ctx, item.ID)
	if err != nil {
		return LeagueDetail{}, newServiceError("count league members", err)
	}

	return LeagueDetail{
		League:      item,
		Role:        membership.Role,
		JoinedAt:    membership.JoinedAt,
		MemberCount: count,
	}, nil
}

// ListMembers returns the members of a league the caller belongs to, earliest first.
func (s *LeagueService) ListMembers(ctx context.Context, userID, leagueID string) ([]league.Membership, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueService.ListMembers")
	defer span.End()

	item, _, err := s.memberLeague(ctx, userID, leagueID)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, item.ID)
	if err != nil {
		return nil, newServiceError("list league members", err)
	}
	return members, nil
}

func (s *LeagueService) memberLeague(ctx context.Context, userID, leagueID string) (league.League, league.Membership, error) {
	userID = strings.TrimSpace(userID)
	leagueID = strings.TrimSpace(leagueID)
	if userID == "" {
		return league.League{}, league.Membership{}, fmt.Errorf("%w: session is required", ErrUnauthenticated)
	}
	if leagueID == "" {
		return league.League{}, league.Membership{}, fmt.Errorf("%w: league id is required", ErrInvalidInput)
	}

	item, exists, err := s.repo.GetByID(ctx, leagueID)
	if errors.Is(err, league.ErrMalformedID) {
		exists, err = false, nil
	}
	if err != nil {
		return league.League{}, league.Membership{}, newServiceError("get league", err)
	}
	if !exists {
		return league.League{}, league.Membership{}, fmt.Errorf("%w: league=%s", ErrNotFound, leagueID)
	}

	membership, member, err := s.repo.GetMembership(ctx, leagueID, userID)
	if err != nil {
		return league.League{}, league.Membership{}, newServiceError("get league membership", err)
	}
	if !member {
		return league.League{}, league.Membership{}, fmt.Errorf("%w: not a member of league=%s", ErrForbidden, leagueID)
	}
	return item, membership, nil
}

// leaguesChanged runs once after a successful create or join. The write is already
// committed, so a failed publish is logged and not returned.
func (s *LeagueService) leaguesChanged(ctx context.Context, userID, leagueID string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Publish(context.WithoutCancel(ctx), session.Event{
		Kind:     session.EventLeaguesChanged,
		UserID:   userID,
		LeagueID: leagueID,
		At:       s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "publish leagues changed failed", "user_id", userID, "error", err)
	}
}

func (s *LeagueService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}
