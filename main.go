package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vgnam/Library-Management-System/config"
	catalogrepo "github.com/vgnam/Library-Management-System/repository/catalog"
	loanrepo "github.com/vgnam/Library-Management-System/repository/loan"
	membershiprepo "github.com/vgnam/Library-Management-System/repository/membership"
	penaltyrepo "github.com/vgnam/Library-Management-System/repository/penalty"
	lendingsvc "github.com/vgnam/Library-Management-System/service/lending"
	membershipsvc "github.com/vgnam/Library-Management-System/service/membership"
	penaltysvc "github.com/vgnam/Library-Management-System/service/penalty"
	"github.com/vgnam/Library-Management-System/util/clock"
	"github.com/vgnam/Library-Management-System/util/database"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	runner := database.NewRunner(db)

	// repos
	cr := catalogrepo.New()
	mr := membershiprepo.New()
	lr := loanrepo.New()
	pr := penaltyrepo.New()

	// services
	clk := clock.Real{}
	fees := penaltysvc.Fees{
		LateRatePerDay: cfg.LateRatePerDay,
		DamageMin:      cfg.DamageFeeMin,
		DamageMax:      cfg.DamageFeeMax,
		DamageDefault:  cfg.DamageFeeDefault,
		LostMultiplier: cfg.LostMultiplier,
	}
	ms := membershipsvc.New(runner, mr, lr, clk)
	svc := services{
		Membership: ms,
		Penalties:  penaltysvc.New(runner, pr, fees, clk),
		Lending:    lendingsvc.New(runner, cr, lr, mr, pr, ms, fees, clk, log),
	}

	log.Info("starting sweep loop", "interval", cfg.SweepInterval.String(), "env", cfg.Env)

	// Run once at startup, then on every tick until shutdown.
	runSweep(ctx, log, svc.Lending)
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			runSweep(ctx, log, svc.Lending)
		}
	}
}

// services is the full surface a transport layer mounts on.
type services struct {
	Membership membershipsvc.Service
	Penalties  penaltysvc.Service
	Lending    lendingsvc.Service
}

func runSweep(ctx context.Context, log *slog.Logger, ls lendingsvc.Sweeper) {
	if _, err := ls.RunSweep(ctx); err != nil {
		log.Error("sweep failed", "err", err)
	}
}
