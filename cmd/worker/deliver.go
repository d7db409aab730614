package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/peoplehub/integration-gateway/internal/config"
	"github.com/peoplehub/integration-gateway/internal/db"
	"github.com/peoplehub/integration-gateway/internal/dispatcher"
	"github.com/peoplehub/integration-gateway/internal/logger"
	"github.com/peoplehub/integration-gateway/internal/metrics"
	"github.com/peoplehub/integration-gateway/internal/repository"
	"github.com/peoplehub/integration-gateway/internal/scheduler"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run the webhook delivery worker",
	RunE:  runDeliver,
}

func runDeliver(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) repositories
	deliveriesRepo := repository.NewDeliveriesRepository(dbx)
	subsRepo := repository.NewSubscriptionsRepository(dbx)
	eventsRepo := repository.NewEventsRepository(dbx)

	// 4) dispatcher + scheduler
	disp := dispatcher.New(
		cfg.Delivery.Breaker.FailThreshold,
		time.Duration(cfg.Delivery.Breaker.OpenForMs)*time.Millisecond,
	)

	sched := scheduler.New(deliveriesRepo, subsRepo, eventsRepo, disp, scheduler.BackoffConfig{
		Base:   cfg.Scheduler.BaseDelay,
		Cap:    cfg.Scheduler.MaxDelay,
		Jitter: cfg.Scheduler.Jitter,
	})

	// tune knobs
	if cfg.Scheduler.WorkerCount > 0 {
		sched.Workers = cfg.Scheduler.WorkerCount
	}
	if cfg.Scheduler.QueueSize > 0 {
		sched.QueueSize = cfg.Scheduler.QueueSize
	}
	if cfg.Scheduler.PollInterval > 0 {
		sched.PollInterval = cfg.Scheduler.PollInterval
	}
	if cfg.Scheduler.ClaimBatch > 0 {
		sched.ClaimBatch = cfg.Scheduler.ClaimBatch
	}
	if cfg.Scheduler.StaleAfter > 0 {
		sched.StaleAfter = cfg.Scheduler.StaleAfter
	}

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> deliver started workers=%d batch=%d poll=%s",
		sched.Workers, sched.ClaimBatch, sched.PollInterval)

	return sched.Run(ctx)
}
