// Command ledgerctl runs one-off maintenance against the ledger database.
//
//	ledgerctl migrate
//	ledgerctl sweep
//	ledgerctl reconcile [member-id]
//	ledgerctl seed-admin <username> <password>
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/config"
	"github.com/brokerline/backend/internal/database"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/models"
	"github.com/brokerline/backend/internal/repository"
	"github.com/brokerline/backend/internal/virtualaccount"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledgerctl [-env file] migrate | sweep | reconcile [member-id] | seed-admin <username> <password>")
	flag.PrintDefaults()
}

func main() {
	envFile := flag.String("env", ".env", "path to env file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envFile, flag.Args()); err != nil {
		slog.Error("ledgerctl failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	clk := clock.System{Location: clock.LoadLocation(cfg.Timezone)}
	members := repository.NewMemberRepo(pool)
	ledgerSvc := ledger.NewService(pool, members, repository.NewDepositRepo(pool), repository.NewAdjustmentRepo(pool),
		repository.NewApplicationRepo(pool), clk, logger)

	switch args[0] {
	case "migrate":
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return err
		}
		return database.MigrateRiver(ctx, pool)

	case "sweep":
		vaSvc := virtualaccount.NewService(pool, members, repository.NewVirtualAccountRepo(pool), ledgerSvc,
			virtualaccount.Config{BankName: cfg.VABankName, Prefix: cfg.VABankPrefix, ValidDays: cfg.VAValidDays}, clk, logger)
		n, err := vaSvc.SweepExpired(ctx, clk.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "expired %d virtual account(s)\n", n)
		return nil

	case "reconcile":
		var ids []uuid.UUID
		if len(args) > 1 {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("member id: %w", err)
			}
			ids = []uuid.UUID{id}
		} else if ids, err = members.ListIDs(ctx); err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		drifted, err := reconcile(ctx, ledgerSvc, ids, os.Stdout)
		if err != nil {
			return err
		}
		if drifted > 0 {
			return fmt.Errorf("%d member(s) out of balance", drifted)
		}
		return nil

	case "seed-admin":
		if len(args) != 3 {
			return fmt.Errorf("seed-admin needs <username> <password>")
		}
		m, err := seedAdmin(ctx, members, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "created administrator %s (%s)\n", m.Username, m.ID)
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

type reconciler interface {
	Reconcile(ctx context.Context, memberID uuid.UUID) (ledger.Reconciliation, error)
}

// reconcile prints one line per member and returns how many drifted.
func reconcile(ctx context.Context, r reconciler, ids []uuid.UUID, out io.Writer) (int, error) {
	drifted := 0
	for _, id := range ids {
		rec, err := r.Reconcile(ctx, id)
		if err != nil {
			return drifted, fmt.Errorf("reconcile %s: %w", id, err)
		}
		status := "ok"
		if !rec.Balanced() {
			status = "DRIFT"
			drifted++
		}
		fmt.Fprintf(out, "%s\t%s\texpected=%d\tactual=%d\tdrift=%d\n", id, status, rec.Expected, rec.Actual, rec.Drift)
	}
	return drifted, nil
}

type memberCreator interface {
	Create(ctx context.Context, m *models.Member) error
}

// seedAdmin creates the approved root administrator, who belongs to no partner.
func seedAdmin(ctx context.Context, members memberCreator, username, password string) (*models.Member, error) {
	if username == "" || len(password) < 8 {
		return nil, fmt.Errorf("username required and password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	m := &models.Member{
		ID:               uuid.New(),
		Username:         username,
		PasswordHash:     hash,
		CompanyName:      "root",
		Role:             models.RoleAdmin,
		ApprovalStatus:   models.ApprovalApproved,
		SettlementMethod: models.SettlementPoint,
	}
	if err := members.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create administrator: %w", err)
	}
	return m, nil
}
