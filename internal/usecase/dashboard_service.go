package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	"github.com/riskibarqy/porras-fc/internal/domain/user"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
)

const (
	GreetingFallbackName   = "Amigo"
	DescriptionPlaceholder = "Sin descripción"

	// AuthEntryPath is where a client without a session is sent.
	AuthEntryPath = "/auth"
	// HomePath is where a client lands after signing out.
	HomePath = "/"

	defaultCountWorkers         = 4
	defaultDashboardLoadTimeout = 10 * time.Second
)

type DashboardCard struct {
	LeagueID    string
	Name        string
	Description string
	Code        string
	Href        string
	Role        league.Role
	MemberCount int
	JoinedAt    time.Time
}

type DashboardPage struct {
	Greeting string
	Empty    bool
	Cards    []DashboardCard
}

type DashboardServiceConfig struct {
	// LoadTimeout bounds each dashboard load of a mounted view, including reloads
	// triggered by session events. Zero uses the default of 10s.
	LoadTimeout time.Duration
}

type DashboardService struct {
	repo         league.Repository
	logger       *logging.Logger
	countWorkers int
	cfg          DashboardServiceConfig
}

func NewDashboardService(repo league.Repository, logger *logging.Logger, cfg DashboardServiceConfig) *DashboardService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultDashboardLoadTimeout
	}
	return &DashboardService{
		repo:         repo,
		logger:       logger,
		countWorkers: defaultCountWorkers,
		cfg:          cfg,
	}
}

// ListMyLeagues returns the user's leagues, most recently joined first.
func (s *DashboardService) ListMyLeagues(ctx context.Context, userID string) ([]league.MemberLeague, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DashboardService.ListMyLeagues")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: session is required", ErrUnauthenticated)
	}

	items, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, newServiceError("list leagues by member", err)
	}
	return items, nil
}

// Page loads the user's leagues with member counts and renders the dashboard.
func (s *DashboardService) Page(ctx context.Context, principal user.Principal) (DashboardPage, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DashboardService.Page")
	defer span.End()

	items, err := s.ListMyLeagues(ctx, principal.UserID)
	if err != nil {
		return DashboardPage{}, err
	}

	counts := make([]int, len(items))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(s.countWorkers)
	for i, item := range items {
		i, leagueID := i, item.League.ID
		p.Go(func(ctx context.Context) error {
			n, err := s.repo.CountMembers(ctx, leagueID)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return DashboardPage{}, newServiceError("count league members", err)
	}

	return BuildDashboardPage(principal, items, counts), nil
}

// BuildDashboardPage renders the dashboard for already loaded leagues.
// counts is indexed like items and may be nil.
func BuildDashboardPage(principal user.Principal, items []league.MemberLeague, counts []int) DashboardPage {
	page := DashboardPage{
		Greeting: "Hola, " + principal.Name(GreetingFallbackName),
		Empty:    len(items) == 0,
		Cards:    make([]DashboardCard, 0, len(items)),
	}
	for i, item := range items {
		card := DashboardCard{
			LeagueID:    item.League.ID,
			Name:        item.League.Name,
			Description: item.League.DescriptionOr(DescriptionPlaceholder),
			Code:        item.League.Code,
			Href:        LeagueHref(item.League.ID),
			Role:        item.Role,
			JoinedAt:    item.JoinedAt,
		}
		if i < len(counts) {
			card.MemberCount = counts[i]
		}
		page.Cards = append(page.Cards, card)
	}
	return page
}

func LeagueHref(leagueID string) string {
	return "/leagues/" + leagueID
}
