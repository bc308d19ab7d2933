// Command server runs the compliance core: identity key and claim storage,
// the claim-topic and trusted-issuer registries, the identity registry with
// its verification read, and the transfer compliance engine, all behind one
// HTTP surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"custos/internal/audit"
	"custos/internal/claimtopics"
	"custos/internal/compliance"
	"custos/internal/identity"
	"custos/internal/identitystore"
	"custos/internal/platform/config"
	"custos/internal/platform/httpserver"
	"custos/internal/platform/logger"
	"custos/internal/platform/metrics"
	platformredis "custos/internal/platform/redis"
	"custos/internal/registry"
	httptransport "custos/internal/transport/http"
	"custos/internal/trustedissuers"
	"custos/pkg/platform/middleware/auth"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backing stores degrade to in-memory when their backends are not
	// configured; single-node deployments need no infrastructure.
	storage, closeStorage, err := newIdentityStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	counters, closeCounters, err := newCounterStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeCounters()

	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(auditStore, log)
	sinks, closeSinks, err := newAuditSinks(cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()
	worker := audit.NewWorker(publisher, log, sinks...)

	identitySvc := identity.NewService(identity.NewInMemoryStore(), log)
	topics := claimtopics.New(log)
	issuers := trustedissuers.New(log)
	registrySvc := registry.NewService(storage, topics, issuers, identitySvc, log, m)
	engine := compliance.NewEngine(counters, identitystore.CountryReader{Store: storage}, log,
		compliance.WithWindows(cfg.DailyWindow, cfg.MonthlyWindow),
		compliance.WithMetrics(m))

	authenticator := auth.New(cfg.JWTSigningKey, cfg.JWTIssuer)
	balances := compliance.NewLedgerClient(cfg.LedgerURL)
	handlers := httptransport.Handlers{
		Compliance: httptransport.NewComplianceHandler(engine, registrySvc, balances, publisher, log),
		Registry:   httptransport.NewRegistryHandler(registrySvc, publisher, log),
		Trust:      httptransport.NewTrustHandler(topics, issuers, publisher, log),
		Identity:   httptransport.NewIdentityHandler(identitySvc, log),
	}
	router := httptransport.NewRouter(handlers, authenticator, nil, log)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newIdentityStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (identitystore.Store, func(), error) {
	if cfg.PostgresURL == "" {
		return identitystore.NewInMemory(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	store := identitystore.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("identity storage using postgres")
	return store, func() { _ = db.Close() }, nil
}

func newCounterStore(cfg config.Config, log *slog.Logger) (compliance.CounterStore, func(), error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return compliance.NewInMemoryCounterStore(), func() {}, nil
	}
	log.Info("transfer counters using redis")
	return compliance.NewRedisCounterStore(client.Client), func() { _ = client.Close() }, nil
}

func newAuditSinks(cfg config.Config, log *slog.Logger) ([]audit.Sink, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, func() {}, nil
	}
	sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit events publishing to kafka", "topic", cfg.KafkaTopic)
	return []audit.Sink{sink}, sink.Close, nil
}
