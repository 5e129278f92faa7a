package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/brokerline/backend/internal/applications"
	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/config"
	"github.com/brokerline/backend/internal/dashboard"
	"github.com/brokerline/backend/internal/database"
	"github.com/brokerline/backend/internal/deposits"
	"github.com/brokerline/backend/internal/execution"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/registry"
	"github.com/brokerline/backend/internal/repository"
	"github.com/brokerline/backend/internal/router"
	"github.com/brokerline/backend/internal/settlement"
	"github.com/brokerline/backend/internal/validation"
	"github.com/brokerline/backend/internal/virtualaccount"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool, logger); err != nil {
		return err
	}
	if err := database.MigrateRiver(ctx, pool); err != nil {
		return err
	}
	slog.Info("River migrations applied")

	clk := clock.System{Location: clock.LoadLocation(cfg.Timezone)}
	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}

	// Repositories
	memberRepo := repository.NewMemberRepo(pool)
	partnerRepo := repository.NewPartnerRepo(pool)
	depositRepo := repository.NewDepositRepo(pool)
	adjustmentRepo := repository.NewAdjustmentRepo(pool)
	applicationRepo := repository.NewApplicationRepo(pool)
	vaRepo := repository.NewVirtualAccountRepo(pool)
	requestRepo := repository.NewDepositRequestRepo(pool)

	// Services
	ledgerSvc := ledger.NewService(pool, memberRepo, depositRepo, adjustmentRepo, applicationRepo, clk, logger)
	appSvc := applications.NewService(pool, applicationRepo, memberRepo, ledgerSvc, validator, applications.Options{
		Premium: cfg.DefaultPremium,
		Clock:   clk,
		Logger:  logger,
	})
	vaSvc := virtualaccount.NewService(pool, memberRepo, vaRepo, ledgerSvc, virtualaccount.Config{
		BankName:  cfg.VABankName,
		Prefix:    cfg.VABankPrefix,
		ValidDays: cfg.VAValidDays,
	}, clk, logger)
	depositSvc := deposits.NewService(pool, requestRepo, partnerRepo, ledgerSvc, clk, logger)
	settlementSvc := settlement.NewService(applicationRepo, partnerRepo, clk, logger)
	authSvc := auth.NewService(memberRepo, cfg.JWTSecret)

	// Background maintenance
	workers := river.NewWorkers()
	execution.AddWorkers(workers,
		execution.NewSweepExpiredWorker(vaSvc, clk, logger),
		execution.NewReconcileLedgerWorker(memberRepo, ledgerSvc, logger),
	)
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: execution.PeriodicJobs(cfg.SweepInterval),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create River client: %w", err)
	}

	apiHandler := router.New(router.Handlers{
		Auth:            auth.NewHandler(authSvc, logger),
		Registry:        registry.NewHandler(registry.NewService(partnerRepo, memberRepo, logger), logger),
		Dashboard:       dashboard.NewHandler(ledgerSvc, vaSvc, logger),
		Applications:    applications.NewHandler(appSvc, logger),
		VirtualAccounts: virtualaccount.NewHandler(vaSvc, logger),
		DepositRequests: deposits.NewHandler(depositSvc, logger),
		Settlements:     settlement.NewHandler(settlementSvc, logger),
	}, router.Deps{
		Tokens:  authSvc,
		Members: memberRepo,
		Schemas: validator,
		Limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		DB:      pool,
		Log:     logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiHandler)

	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("start River client: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River stop", "error", err)
	}
	return nil
}
