package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/riskibarqy/porras-fc/internal/config"
	"github.com/riskibarqy/porras-fc/internal/domain/league"
	"github.com/riskibarqy/porras-fc/internal/domain/session"
	"github.com/riskibarqy/porras-fc/internal/infrastructure/account/anubis"
	"github.com/riskibarqy/porras-fc/internal/infrastructure/account/jwtauth"
	cacherepo "github.com/riskibarqy/porras-fc/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/porras-fc/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/porras-fc/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/porras-fc/internal/infrastructure/sessionbus"
	"github.com/riskibarqy/porras-fc/internal/interfaces/httpapi"
	"github.com/riskibarqy/porras-fc/internal/platform/cache"
	"github.com/riskibarqy/porras-fc/internal/platform/eventbus"
	idgen "github.com/riskibarqy/porras-fc/internal/platform/id"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
	"github.com/riskibarqy/porras-fc/internal/usecase"
)

const (
	probeTimeout     = 5 * time.Second
	hubCloseTimeout  = 5 * time.Second
	natsDrainTimeout = 5 * time.Second
)

// App owns the HTTP server and the resources it was built on.
type App struct {
	Server *http.Server

	logger  *logging.Logger
	closers []func(ctx context.Context) error
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	a := &App{logger: logger}
	clock := clockwork.NewRealClock()
	ids := idgen.NewUUIDGenerator()

	store, err := a.openStore(cfg, ids)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.CacheEnabled {
		store = cacherepo.NewLeagueRepository(store, cache.NewStore(cfg.CacheTTL, cache.WithClock(clock)))
	}

	hub, err := eventbus.NewHub(cfg.EventWorkers, eventbus.WithClock(clock), eventbus.WithLogger(logger))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("create event hub: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		return hub.Close(hubCloseTimeout)
	})

	var notifier session.Notifier = hub
	if cfg.NATSEnabled {
		notifier, err = a.startSessionBridge(cfg, hub)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	provider, err := newSessionProvider(cfg, clock, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	provisioner := usecase.SelectLeagueProvisioner(probeCtx, store, ids, clock, logger)
	cancel()

	leagueSvc := usecase.NewLeagueService(store, provisioner, nil, notifier, clock, logger, usecase.LeagueServiceConfig{
		MaxCodeAttempts:  cfg.InviteCodeMaxAttempts,
		OperationTimeout: cfg.LeagueOpTimeout,
	})
	dashboardSvc := usecase.NewDashboardService(store, logger, usecase.DashboardServiceConfig{
		LoadTimeout: cfg.DashboardLoadTimeout,
	})
	sessionSvc := usecase.NewSessionService(provider, notifier, clock, logger)

	handler := httpapi.NewHandler(leagueSvc, dashboardSvc, sessionSvc, notifier, httpapi.LiveConfig{
		PingInterval:   cfg.WSPingInterval,
		ReadTimeout:    cfg.WSReadTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)
	router := httpapi.NewRouter(handler, sessionSvc, logger, httpapi.RouterConfig{
		SwaggerEnabled:     cfg.SwaggerEnabled,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	a.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return a, nil
}

// Close releases resources in reverse acquisition order. The HTTP server is shut down by the caller.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.WarnContext(ctx, "release resource failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}

func (a *App) openStore(cfg config.Config, ids idgen.Generator) (league.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn("using in-memory league store", "reason", "STORE_DRIVER=memory")
		return memory.NewLeagueRepository(memory.WithAtomicCreate(ids)), nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		return db.Close()
	})
	return postgres.NewLeagueRepository(db), nil
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary, cfg.ServiceName)
	opts := []otelsql.Option{
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	}
	if name := dbNameFromURL(dsn); name != "" {
		opts = append(opts, otelsql.WithDBName(name))
	}

	db, err := otelsqlx.Open("postgres", dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

func (a *App) startSessionBridge(cfg config.Config, hub *eventbus.Hub) (session.Notifier, error) {
	conn, err := sessionbus.Connect(cfg.NATSURL, cfg.ServiceName, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	bridge := sessionbus.NewBridge(conn, cfg.NATSSubject, uuid.NewString(), hub, a.logger)
	if err := bridge.Start(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("start session bridge: %w", err)
	}

	a.closers = append(a.closers, func(ctx context.Context) error {
		if err := bridge.Close(); err != nil {
			a.logger.WarnContext(ctx, "close session bridge failed", "error", err)
		}
		return drainNATS(conn)
	})
	return bridge, nil
}

func drainNATS(conn *nats.Conn) error {
	done := make(chan struct{})
	conn.SetClosedHandler(func(*nats.Conn) { close(done) })
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	select {
	case <-done:
	case <-time.After(natsDrainTimeout):
		conn.Close()
	}
	return nil
}

func newSessionProvider(cfg config.Config, clock clockwork.Clock, logger *logging.Logger) (usecase.SessionProvider, error) {
	if cfg.AuthMode == config.AuthModeJWT {
		verifier, err := jwtauth.NewVerifier(jwtauth.Config{
			Secret: cfg.AuthJWTSecret,
			Issuer: cfg.AuthJWTIssuer,
			Clock:  clock,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create jwt verifier: %w", err)
		}
		return verifier, nil
	}

	return anubis.NewClient(anubis.ClientConfig{
		HTTPClient:     &http.Client{Timeout: cfg.AnubisTimeout},
		BaseURL:        cfg.AnubisBaseURL,
		IntrospectPath: cfg.AnubisIntrospectPath,
		RevokePath:     cfg.AnubisRevokePath,
		AdminKey:       cfg.AnubisAdminKey,
		Timeout:        cfg.AnubisTimeout,
		CacheTTL:       cfg.AnubisCacheTTL,
		CircuitBreaker: cfg.AnubisCircuitBreaker(),
		Logger:         logger,
	}), nil
}
