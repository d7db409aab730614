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
	"github.com/peoplehub/integration-gateway/internal/emitter"
	"github.com/peoplehub/integration-gateway/internal/ingest"
	"github.com/peoplehub/integration-gateway/internal/kafka"
	"github.com/peoplehub/integration-gateway/internal/logger"
	"github.com/peoplehub/integration-gateway/internal/metrics"
	"github.com/peoplehub/integration-gateway/internal/repository"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume platform events from Kafka and schedule deliveries",
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	// 3) emitter over the MySQL repos
	emitSvc := emitter.New(
		repository.NewEventsRepository(dbx),
		repository.NewSubscriptionsRepository(dbx),
		repository.NewDeliveriesRepository(dbx),
	)

	// 4) kafka consumer
	topic := cfg.Kafka.Topic
	if topic == "" {
		topic = "platform.events"
	}
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "igw-ingest"
	}

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := ingest.New(consumer, emitSvc)

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> ingest started topic=%s group=%s workers=%d", topic, groupID, w.Workers)

	return w.Run(ctx)
}
