package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/porras-fc/internal/platform/eventbus"
	idgen "github.com/riskibarqy/porras-fc/internal/platform/id"
)

type leagueFixture struct {
	repo    *memory.LeagueRepository
	hub     *eventbus.Hub
	clock   *clockwork.FakeClock
	service *LeagueService
	events  *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *eventRecorder) record(e session.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind session.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func newLeagueFixture(t *testing.T, withProcedure bool, codes InviteCodeGenerator, cfg LeagueServiceConfig) *leagueFixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC))
	opts := []memory.LeagueOption{memory.WithNow(clock.Now)}
	if withProcedure {
		opts = append(opts, memory.WithAtomicCreate(idgen.NewUUIDGenerator()))
	}
	repo := memory.NewLeagueRepository(opts...)

	hub, err := eventbus.NewHub(0, eventbus.WithClock(clock))
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}

	provisioner := SelectLeagueProvisioner(context.Background(), repo, idgen.NewUUIDGenerator(), clock, nil)
	return &leagueFixture{
		repo:    repo,
		hub:     hub,
		clock:   clock,
		service: NewLeagueService(repo, provisioner, codes, hub, clock, nil, cfg),
		events:  &eventRecorder{},
	}
}

func TestLeagueService_CreateLeague_CreatesLeagueAndAdmin(t *testing.T) {
	for _, tc := range []struct {
		name          string
		withProcedure bool
		strategy      string
	}{
		{name: "atomic procedure", withProcedure: true, strategy: StrategyAtomic},
		{name: "two-step insert", withProcedure: false, strategy: StrategyTwoStep},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newLeagueFixture(t, tc.withProcedure, nil, LeagueServiceConfig{})
			f.hub.Subscribe("u1", f.events.record)

			result, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{
				UserID:      "u1",
				Name:        "  Amigos FC ",
				Description: "   ",
			})
			if err != nil {
				t.Fatalf("create league: %v", err)
			}

			if result.Strategy != tc.strategy {
				t.Fatalf("expected strategy %s, got %s", tc.strategy, result.Strategy)
			}
			created := result.League
			if created.Name != "Amigos FC" {
				t.Fatalf("expected trimmed name, got %q", created.Name)
			}
			if created.Description != nil {
				t.Fatalf("expected absent description, got %q", *created.Description)
			}
			if !league.ValidCode(created.Code) {
				t.Fatalf("expected 6-character base-36 code, got %q", created.Code)
			}

			stored, ok, _ := f.repo.GetByCode(context.Background(), created.Code)
			if !ok || stored.ID != created.ID || stored.OwnerID != "u1" {
				t.Fatalf("expected stored league for code, got %+v ok=%v", stored, ok)
			}
			members, _ := f.repo.ListMembers(context.Background(), created.ID)
			if len(members) != 1 || members[0].UserID != "u1" || members[0].Role != league.RoleAdmin {
				t.Fatalf("expected exactly one ADMIN membership, got %+v", members)
			}
			if got := f.events.count(session.EventLeaguesChanged); got != 1 {
				t.Fatalf("expected completion hook to fire once, fired %d times", got)
			}
		})
	}
}

func TestLeagueService_CreateLeague_RejectsInput(t *testing.T) {
	f := newLeagueFixture(t, false, nil, LeagueServiceConfig{})

	if _, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{Name: "Amigos FC"}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{UserID: "u1", Name: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLeagueService_CreateLeague_RegeneratesCodeOnCollision(t *testing.T) {
	codes := &fixedCodes{codes: []string{"AAAAAA", "AAAAAA", "BBBBBB"}}
	f := newLeagueFixture(t, true, codes, LeagueServiceConfig{MaxCodeAttempts: 3})

	first, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{UserID: "u1", Name: "Primera"})
	if err != nil || first.League.Code != "AAAAAA" {
		t.Fatalf("first create: code=%q err=%v", first.League.Code, err)
	}

	second, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{UserID: "u2", Name: "Segunda"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.League.Code != "BBBBBB" {
		t.Fatalf("expected regenerated code, got %q", second.League.Code)
	}
}

func TestLeagueService_CreateLeague_SingleAttemptSurfacesCollision(t *testing.T) {
	codes := &fixedCodes{codes: []string{"AAAAAA"}}
	f := newLeagueFixture(t, false, codes, LeagueServiceConfig{MaxCodeAttempts: 1})

	if _, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{UserID: "u1", Name: "Primera"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.service.CreateLeague(context.Background(), CreateLeagueInput{UserID: "u2", Name: "Segunda"})
	if !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected ErrServiceError, got %v", err)
	}
	if !errors.Is(err, league.ErrDuplicateCode) {
		t.Fatalf("expected store error to be preserved, got %v", err)
	}
}

func TestLeagueService_JoinLeague(t *testing.T) {
	codes := &fixedCodes{codes: []string{"AB12CD"}}
	f := newLeagueFixture(t, true, codes, LeagueServiceConfig{})
	ctx := context.Background()

	created, err := f.service.CreateLeague(ctx, CreateLeagueInput{UserID: "owner", Name: "Amigos FC"})
	if err != nil {
		t.Fatalf("create league: %v", err)
	}
	f.hub.Subscribe("u2", f.events.record)

	t.Run("lowercase code joins as member", func(t *testing.T) {
		joined, err := f.service.JoinLeague(ctx, JoinLeagueInput{UserID: "u2", Code: " ab12cd "})
		if err != nil {
			t.Fatalf("join league: %v", err)
		}
		if joined.ID != created.League.ID {
			t.Fatalf("joined wrong league: %s", joined.ID)
		}
		m, ok, _ := f.repo.GetMembership(ctx, joined.ID, "u2")
		if !ok || m.Role != league.RoleMember {
			t.Fatalf("expected MEMBER membership, got %+v ok=%v", m, ok)
		}
		if got := f.events.count(session.EventLeaguesChanged); got != 1 {
			t.Fatalf("expected completion hook once, got %d", got)
		}
	})

	t.Run("second join is rejected", func(t *testing.T) {
		_, err := f.service.JoinLeague(ctx, JoinLeagueInput{UserID: "u2", Code: "AB12CD"})
		if !errors.Is(err, ErrAlreadyMember) {
			t.Fatalf("expected ErrAlreadyMember, got %v", err)
		}
		if n, _ := f.repo.CountMembers(ctx, created.League.ID); n != 2 {
			t.Fatalf("expected owner and one member, got %d memberships", n)
		}
		if got := f.events.count(session.EventLeaguesChanged); got != 1 {
			t.Fatalf("failed join must not fire the hook, count=%d", got)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.service.JoinLeague(ctx, JoinLeagueInput{UserID: "u3", Code: "ZZZZZZ"})
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
		if items, _ := f.repo.ListByMember(ctx, "u3"); len(items) != 0 {
			t.Fatalf("no membership expected, got %d", len(items))
		}
	})

	t.Run("empty code", func(t *testing.T) {
		if _, err := f.service.JoinLeague(ctx, JoinLeagueInput{UserID: "u3", Code: "  "}); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode, got %v", err)
		}
	})

	t.Run("no session", func(t *testing.T) {
		if _, err := f.service.JoinLeague(ctx, JoinLeagueInput{Code: "AB12CD"}); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})
}

func TestLeagueService_JoinLeague_ConcurrentJoinsKeepOneMembership(t *testing.T) {
	codes := &fixedCodes{codes: []string{"AB12CD"}}
	f := newLeagueFixture(t, false, codes, LeagueServiceConfig{})
	ctx := context.Background()

	created, err := f.service.CreateLeague(ctx, CreateLeagueInput{UserID: "owner", Name: "Amigos FC"})
	if err != nil {
		t.Fatalf("create league: %v", err)
	}

	const attempts = 8
	var ok, already atomic.Int32
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := f.service.JoinLeague(ctx, JoinLeagueInput{UserID: "u2", Code: "AB12CD"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyMember):
				already.Add(1)
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || already.Load() != attempts-1 {
		t.Fatalf("expected one success and %d AlreadyMember, got ok=%d already=%d", attempts-1, ok.Load(), already.Load())
	}
	if n, _ := f.repo.CountMembers(ctx, created.League.ID); n != 2 {
		t.Fatalf("expected two memberships, got %d", n)
	}
}

func TestLeagueService_GetLeagueAndMembers(t *testing.T) {
	codes := &fixedCodes{codes: []string{"AB12CD"}}
	f := newLeagueFixture(t, true, codes, LeagueServiceConfig{})
	ctx := context.Background()

	created, _ := f.service.CreateLeague(ctx, CreateLeagueInput{UserID: "owner", Name: "Amigos FC", Description: "Porra del barrio"})
	f.clock.Advance(time.Minute)
	if _, err := f.service.JoinLeague(ctx, JoinLeagueInput{UserID: "u2", Code: "AB12CD"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	detail, err := f.service.GetLeague(ctx, "u2", created.League.ID)
	if err != nil {
		t.Fatalf("get league: %v", err)
	}
	if detail.Role != league.RoleMember || detail.MemberCount != 2 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.League.Description == nil || *detail.League.Description != "Porra del barrio" {
		t.Fatalf("expected description to round-trip, got %+v", detail.League.Description)
	}

	members, err := f.service.ListMembers(ctx, "owner", created.League.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 || members[0].UserID != "owner" || members[1].UserID != "u2" {
		t.Fatalf("expected members ordered by join time, got %+v", members)
	}

	if _, err := f.service.GetLeague(ctx, "stranger", created.League.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.service.GetLeague(ctx, "u2", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
