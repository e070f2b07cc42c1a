package main

import (
	"context"
	"fmt"

	"github.com/mborders/logmatic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"solana-fund-dao/internal/config"
	"solana-fund-dao/internal/events"
	"solana-fund-dao/internal/execution"
	"solana-fund-dao/internal/fund"
	"solana-fund-dao/internal/idhash"
	"solana-fund-dao/internal/issuer"
	issuermem "solana-fund-dao/internal/issuer/memory"
	issuerrpc "solana-fund-dao/internal/issuer/rpc"
	"solana-fund-dao/internal/observability"
	"solana-fund-dao/internal/proposal"
	"solana-fund-dao/internal/reporting"
	"solana-fund-dao/internal/storage"
	chstore "solana-fund-dao/internal/storage/clickhouse"
	"solana-fund-dao/internal/storage/memory"
	pgstore "solana-fund-dao/internal/storage/postgres"
	"solana-fund-dao/internal/venue"
	"solana-fund-dao/internal/venue/stub"
	"solana-fund-dao/internal/venue/ws"
)

// app holds every wired component.
type app struct {
	cfg *config.Config
	log *logmatic.Logger

	registry *prometheus.Registry
	metrics  *observability.Metrics

	ledger     storage.Ledger
	activity   *chstore.ActivityStore // nil without a ClickHouse DSN
	funds      *fund.Manager
	proposals  *proposal.Engine
	dispatcher *execution.Dispatcher
	reports    *reporting.Generator

	closers []func()
}

// newApp connects the configured backends and builds the engine.
// Close must be called on the returned app.
func newApp(ctx context.Context, cfg *config.Config, log *logmatic.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(cfg.Metrics.Namespace, a.registry)

	if a.ledger, err = a.openLedger(ctx); err != nil {
		return nil, err
	}
	tokens, err := a.openIssuer()
	if err != nil {
		return nil, err
	}
	executor, err := a.openVenue(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublishers(ctx)
	if err != nil {
		return nil, err
	}

	deriver, err := idhash.NewDeriver(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}

	a.funds, err = fund.NewManager(fund.Options{
		Ledger:    a.ledger,
		Issuer:    tokens,
		Deriver:   deriver,
		Publisher: publisher,
		Metrics:   a.metrics,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	a.proposals, err = proposal.NewEngine(proposal.Options{
		Ledger:    a.ledger,
		Registry:  a.funds.Registry(),
		Deriver:   deriver,
		Publisher: publisher,
		Metrics:   a.metrics,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	a.dispatcher, err = execution.NewDispatcher(execution.Options{
		Ledger:    a.ledger,
		Registry:  a.funds.Registry(),
		Venue:     executor,
		Timeout:   cfg.Venue.ExecutionTimeout,
		Publisher: publisher,
		Metrics:   a.metrics,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	a.reports = reporting.NewGenerator(a.funds, a.proposals)
	return a, nil
}

func (a *app) openLedger(ctx context.Context) (storage.Ledger, error) {
	if a.cfg.Storage.Backend == config.BackendMemory {
		a.log.Warn("Using in-memory ledger; state is lost on exit")
		return observability.InstrumentLedger(memory.NewLedger(), a.metrics, "memory"), nil
	}

	pool, err := pgstore.NewPool(ctx, a.cfg.Storage.PostgresDSN,
		pgstore.WithApplicationName(appName),
		pgstore.WithMaxConns(a.cfg.Storage.MaxConns),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	return observability.InstrumentLedger(pgstore.NewLedger(pool), a.metrics, "postgres"), nil
}

func (a *app) openIssuer() (issuer.TokenIssuer, error) {
	if a.cfg.Issuer.Backend == config.BackendMemory {
		if a.cfg.Storage.Backend != config.BackendMemory {
			a.log.Warn("In-memory issuer with a persistent ledger; share balances will not survive a restart")
		}
		return issuermem.New(), nil
	}

	opts := []issuerrpc.ClientOption{
		issuerrpc.WithTimeout(a.cfg.Issuer.Timeout),
		issuerrpc.WithMaxRetries(a.cfg.Issuer.MaxRetries),
	}
	if a.cfg.Issuer.AuthToken != "" {
		opts = append(opts, issuerrpc.WithAuthToken(a.cfg.Issuer.AuthToken))
	}
	a.log.Info("Issuer RPC endpoint %s", a.cfg.Issuer.Endpoint)
	return issuerrpc.NewClient(a.cfg.Issuer.Endpoint, opts...), nil
}

func (a *app) openVenue(ctx context.Context) (venue.Executor, error) {
	if a.cfg.Venue.Backend == config.BackendStub {
		a.log.Warn("Using stub trade venue; every trade fills in full")
		return stub.NewExecutor(), nil
	}

	wsCfg := ws.DefaultConfig()
	client, err := ws.NewClient(ctx, a.cfg.Venue.Endpoint, &wsCfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("connect to venue: %w", err)
	}
	a.closers = append(a.closers, func() { client.Close() })
	return client, nil
}

// openPublishers returns nil when no event sink is configured.
func (a *app) openPublishers(ctx context.Context) (events.Publisher, error) {
	var sinks events.Multi

	if url := a.cfg.Events.NATSURL; url != "" {
		nc, err := events.ConnectNATS(url, a.cfg.Events.ClientName)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
		sinks = append(sinks, events.NewNATSPublisher(nc, a.cfg.Events.SubjectPrefix))
		a.log.Info("Publishing events to NATS %s under %s.*", url, a.cfg.Events.SubjectPrefix)
	}

	if dsn := a.cfg.Activity.ClickhouseDSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		a.activity = chstore.NewActivityStore(conn)
		sinks = append(sinks, a.activity)
		a.log.Info("Archiving fund activity to ClickHouse")
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
