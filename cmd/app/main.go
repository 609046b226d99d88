// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ideaforge-billing/internal/application"
	"ideaforge-billing/internal/config"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/domain/ports/repository"
	aiAdapters "ideaforge-billing/internal/infra/adapters/ai"
	payAdapters "ideaforge-billing/internal/infra/adapters/payment"
	"ideaforge-billing/internal/infra/api"
	mdb "ideaforge-billing/internal/infra/db/mongo"
	pg "ideaforge-billing/internal/infra/db/postgres"
	"ideaforge-billing/internal/infra/localcache"
	"ideaforge-billing/internal/infra/logging"
	"ideaforge-billing/internal/infra/metrics"
	red "ideaforge-billing/internal/infra/redis"
	"ideaforge-billing/internal/infra/sched"
	"ideaforge-billing/internal/infra/worker"
	"ideaforge-billing/internal/usecase"
)

const shutdownGrace = 15 * time.Second

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, .env loading)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("app stopped with error")
	}
	logger.Info().Msg("bye")
}

// stores groups the persistence ports behind the configured driver.
type stores struct {
	accounts repository.AccountRepository
	invoices repository.InvoiceRepository
	tm       repository.TransactionManager
	health   func(context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*stores, error) {
	switch cfg.Driver {
	case "mongo":
		client, db, err := mdb.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := mdb.EnsureIndexes(ctx, db); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, err
			}
		}
		tm, err := mdb.NewTxManager(ctx, client)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		if !tm.Transactional() {
			logger.Warn().Msg("mongo is not a replica set; invoice writes run without transactions")
		}
		return &stores{
			accounts: mdb.NewAccountRepo(db),
			invoices: mdb.NewInvoiceRepo(db),
			tm:       tm,
			health:   mdb.Healthcheck(client),
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil
	default:
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &stores{
			accounts: pg.NewAccountRepo(pool),
			invoices: pg.NewInvoiceRepo(pool),
			tm:       pg.NewTxManager(pool),
			health:   pool.Ping,
			close:    pool.Close,
		}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()

	// ---- Persistence ----
	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer st.close()
	checks := []api.HealthCheck{{Name: "database", Check: st.health}}

	// ---- Redis / cache / locks ----
	var (
		cache   adapter.CacheStore = localcache.Disabled{}
		locker  adapter.Locker     = localcache.NewKeyedLocker(10, 100*time.Millisecond)
		limiter api.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient, 10, 100*time.Millisecond)
		limiter = red.NewRateLimiter(redisClient)
		if cfg.Cache.Driver == "redis" {
			cache = red.NewCacheStore(redisClient, logger)
		}
		checks = append(checks, api.HealthCheck{Name: "redis", Check: redisClient.Ping})
	}
	if cfg.Cache.Driver == "memory" {
		cache = localcache.NewLRUStore(cfg.Cache.Size, max(cfg.Billing.PlanCacheTTL, cfg.Billing.PendingTTL))
	}

	// ---- Payment provider ----
	var gateway adapter.PaymentGateway
	switch cfg.Payment.Provider {
	case "paypal":
		gateway, err = payAdapters.NewPayPalGateway(cfg.Payment.PayPal, cfg.App.BrandName, logger)
		if err != nil {
			return fmt.Errorf("paypal gateway: %w", err)
		}
	default:
		logger.Warn().Msg("payment.provider=noop; subscriptions are simulated in memory")
		gateway = payAdapters.NewNoopPaymentGateway()
	}

	// ---- AI analyzer chain ----
	analyzer, err := aiAdapters.NewAnalyzer(ctx, cfg.AI, logger)
	if err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	logger.Info().Str("providers", analyzer.Name()).Msg("ai analyzer ready")

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(gateway, cache, cfg.Billing.PlanCacheTTL, logger)
	invoiceUC := usecase.NewInvoiceUseCase(st.invoices, st.tm, cfg.Billing.InvoiceRetries, logger)
	subUC := usecase.NewSubscriptionUseCase(st.accounts, planUC, invoiceUC, gateway, cache, locker, usecase.SubscriptionSettings{
		BaseURL:    cfg.App.BaseURL,
		PendingTTL: cfg.Billing.PendingTTL,
		LockTTL:    cfg.Billing.LockTTL,
	}, logger)
	quotaUC := usecase.NewQuotaUseCase(st.accounts, cfg.Quota.FreeLimit, cfg.Quota.FreeWindow, logger)
	analysisUC := usecase.NewAnalysisUseCase(quotaUC, analyzer, aiAdapters.NewTiktokenCounter(""), cfg.AI.MaxInputTokens, logger)

	accountUC := usecase.NewAccountUseCase(st.accounts, st.invoices, st.tm, gateway, locker, cfg.Billing.LockTTL, logger)

	// ---- Facade ----
	facade := application.NewBillingFacade(planUC, subUC, quotaUC, invoiceUC, analysisUC, accountUC, logger)

	// ---- HTTP servers ----
	auth := api.NewAuthManager(cfg.Auth, !cfg.Runtime.Dev)
	publicSrv := api.NewServer(cfg, facade, auth, limiter, logger).HTTPServer()
	adminSrv := api.NewAdminServer(cfg.Admin.Port, logger, checks...)

	g, gctx := errgroup.WithContext(ctx)
	serve := func(name string, srv *http.Server) {
		g.Go(func() error {
			logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	// ---- Provider sync ----
	if cfg.Sync.Enabled {
		pool := worker.NewPool(cfg.Sync.Workers, logger)
		providerSync := sched.NewProviderSync(st.accounts, subUC, pool, cfg.Sync.BatchSize, logger)
		scheduler := sched.NewScheduler(30*time.Minute, logger)
		if err := scheduler.Add("provider_sync", cfg.Sync.Schedule, providerSync.Job()); err != nil {
			return err
		}
		pool.Start(gctx)
		scheduler.Start()
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			scheduler.Stop(sctx)
			pool.Stop()
			return nil
		})
	}

	serve("api", publicSrv)
	serve("admin", adminSrv)

	return g.Wait()
}
