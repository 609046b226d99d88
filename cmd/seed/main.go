package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"ideaforge-billing/internal/config"
	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/domain/ports/repository"
	payAdapters "ideaforge-billing/internal/infra/adapters/payment"
	"ideaforge-billing/internal/infra/api"
	pg "ideaforge-billing/internal/infra/db/postgres"
	"ideaforge-billing/internal/infra/logging"
	red "ideaforge-billing/internal/infra/redis"
	"ideaforge-billing/internal/usecase"
)

// seed creates a FREE account in Postgres and prints a session token for it,
// so the API can be exercised locally without a sign-in flow. With
// -warm-plans it also pre-creates the provider plan catalog.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	email := flag.String("email", "founder@example.com", "account email")
	name := flag.String("name", "Demo Founder", "account display name")
	warm := flag.Bool("warm-plans", false, "create provider plans for every paid tier and cache their ids")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("seed supports database.driver=postgres only, got %q", cfg.Database.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres and bring the schema up to date
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, logging.New(cfg.Log, true)); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if *warm {
		if err := warmPlans(ctx, cfg); err != nil {
			log.Fatalf("warm plans: %v", err)
		}
	}

	accounts := pg.NewAccountRepo(pool)
	acc, err := model.NewAccount(uuid.NewString(), *email, *name, time.Now())
	if err != nil {
		log.Fatalf("new account: %v", err)
	}
	if err := accounts.Create(ctx, repository.NoTX, acc); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			fmt.Printf("account %s already present. No changes.\n", *email)
			return
		}
		log.Fatalf("create account: %v", err)
	}

	token, err := api.NewAuthManager(cfg.Auth, false).Mint(acc.ID, acc.Email)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Printf("seeded: %s (id=%s, tier=%s)\n", acc.Email, acc.ID, acc.Tier)
	fmt.Printf("Authorization: Bearer %s\n", token)
}

// warmPlans resolves every paid (tier, plan) pair so the first checkout does
// not pay for product and plan creation. Needs the redis cache driver.
func warmPlans(ctx context.Context, cfg *config.Config) error {
	if cfg.Cache.Driver != "redis" {
		fmt.Println("cache.driver is not redis; plan ids would not outlive this process. Skipping.")
		return nil
	}
	logger := logging.New(cfg.Log, true)
	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	var gateway adapter.PaymentGateway = payAdapters.NewNoopPaymentGateway()
	if cfg.Payment.Provider == "paypal" {
		if gateway, err = payAdapters.NewPayPalGateway(cfg.Payment.PayPal, cfg.App.BrandName, logger); err != nil {
			return err
		}
	}
	planUC := usecase.NewPlanUseCase(gateway, red.NewCacheStore(client, logger), cfg.Billing.PlanCacheTTL, logger)
	for _, tier := range []model.Tier{model.TierMonthly, model.TierYearly} {
		for _, plan := range []model.PlanType{model.PlanBasic, model.PlanPro} {
			id, err := planUC.ResolvePlan(ctx, tier, plan)
			if err != nil {
				return fmt.Errorf("%s: %w", model.PlanLabel(tier, plan), err)
			}
			fmt.Printf("plan: %s -> %s\n", model.PlanLabel(tier, plan), id)
		}
	}
	return nil
}
