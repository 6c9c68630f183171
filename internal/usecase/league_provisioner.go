package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	idgen "github.com/riskibarqy/porras-fc/internal/platform/id"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

const (
	StrategyAtomic  = "atomic"
	StrategyTwoStep = "two_step"
)

// LeagueDraft is a league about to be stored together with its owner's ADMIN membership.
type LeagueDraft struct {
	Name        string
	Description *string
	Code        string
	OwnerID     string
}

type ProvisionResult struct {
	LeagueID string
	Strategy string
}

// LeagueProvisioner stores a new league and makes its owner an ADMIN member.
type LeagueProvisioner interface {
	Provision(ctx context.Context, draft LeagueDraft) (ProvisionResult, error)
}

// AtomicProvisioner delegates both writes to the store's transactional procedure.
type AtomicProvisioner struct {
	creator league.AtomicCreator
}

func NewAtomicProvisioner(creator league.AtomicCreator) *AtomicProvisioner {
	return &AtomicProvisioner{creator: creator}
}

func (p *AtomicProvisioner) Provision(ctx context.Context, draft LeagueDraft) (ProvisionResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AtomicProvisioner.Provision")
	defer span.End()

	leagueID, err := p.creator.CreateWithMember(ctx, draft.Name, draft.Code, draft.Description, draft.OwnerID)
	if err != nil {
		return ProvisionResult{}, err
	}
	return ProvisionResult{LeagueID: leagueID, Strategy: StrategyAtomic}, nil
}

// TwoStepProvisioner inserts the league, then the ADMIN membership, as independent writes.
// A failed membership insert leaves the league stored without members; nothing is rolled back.
type TwoStepProvisioner struct {
	repo   league.Repository
	idGen  idgen.Generator
	clock  clockwork.Clock
	logger *logging.Logger
}

func NewTwoStepProvisioner(repo league.Repository, idGen idgen.Generator, clock clockwork.Clock, logger *logging.Logger) *TwoStepProvisioner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TwoStepProvisioner{
		repo:   repo,
		idGen:  idGen,
		clock:  clock,
		logger: logger,
	}
}

func (p *TwoStepProvisioner) Provision(ctx context.Context, draft LeagueDraft) (ProvisionResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TwoStepProvisioner.Provision")
	defer span.End()

	leagueID, err := p.idGen.NewID()
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("generate league id: %w", err)
	}

	now := p.clock.Now().UTC()
	item := league.League{
		ID:          leagueID,
		Name:        draft.Name,
		Description: draft.Description,
		Code:        draft.Code,
		OwnerID:     draft.OwnerID,
		CreatedAt:   now,
	}
	if err := p.repo.Create(ctx, item); err != nil {
		return ProvisionResult{}, err
	}

	err = p.repo.AddMember(ctx, league.Membership{
		LeagueID: leagueID,
		UserID:   draft.OwnerID,
		Role:     league.RoleAdmin,
		JoinedAt: now,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "league stored without admin membership",
			"league_id", leagueID,
			"owner_id", draft.OwnerID,
			"error", err,
		)
		return ProvisionResult{}, err
	}

	return ProvisionResult{LeagueID: leagueID, Strategy: StrategyTwoStep}, nil
}

// FallbackProvisioner tries primary first and switches to secondary when it fails.
// Code collisions and cancelled contexts are returned as-is.
type FallbackProvisioner struct {
	primary   LeagueProvisioner
	secondary LeagueProvisioner
	logger    *logging.Logger
}

func NewFallbackProvisioner(primary, secondary LeagueProvisioner, logger *logging.Logger) *FallbackProvisioner {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackProvisioner{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (p *FallbackProvisioner) Provision(ctx context.Context, draft LeagueDraft) (ProvisionResult, error) {
	result, err := p.primary.Provision(ctx, draft)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, league.ErrDuplicateCode) || ctx.Err() != nil {
		return ProvisionResult{}, err
	}

	p.logger.InfoContext(ctx, "atomic league creation failed, using two-step insert",
		"owner_id", draft.OwnerID,
		"error", err,
	)
	return p.secondary.Provision(ctx, draft)
}

// SelectLeagueProvisioner probes the store once and picks the creation strategy.
// Stores with the atomic procedure get atomic-with-fallback; others get two-step only.
func SelectLeagueProvisioner(
	ctx context.Context,
	store league.Store,
	idGen idgen.Generator,
	clock clockwork.Clock,
	logger *logging.Logger,
) LeagueProvisioner {
	if logger == nil {
		logger = logging.Default()
	}

	twoStep := NewTwoStepProvisioner(store, idGen, clock, logger)
	supported, err := store.SupportsCreateWithMember(ctx)
	if err != nil {
		logger.WarnContext(ctx, "probe atomic league creation failed", "error", err)
		return twoStep
	}
	if !supported {
		logger.InfoContext(ctx, "atomic league creation unavailable", "strategy", StrategyTwoStep)
		return twoStep
	}

	logger.InfoContext(ctx, "atomic league creation available", "strategy", StrategyAtomic)
	return NewFallbackProvisioner(NewAtomicProvisioner(store), twoStep, logger)
}
