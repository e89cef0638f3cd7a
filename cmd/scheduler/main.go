package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dividendscout/pipeline/internal/config"
	"github.com/dividendscout/pipeline/internal/database"
	"github.com/dividendscout/pipeline/internal/kafka"
	"github.com/dividendscout/pipeline/internal/metrics"
	"github.com/dividendscout/pipeline/internal/pipeline"
	"github.com/dividendscout/pipeline/internal/runlock"
	"github.com/dividendscout/pipeline/internal/scheduler"
	"github.com/dividendscout/pipeline/internal/clients/alphavantage"
	"github.com/dividendscout/pipeline/internal/clients/fmp"
	"github.com/dividendscout/pipeline/internal/clients/yahoo"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer producer.Close()

	sink, err := metrics.NewFileSink(cfg.Pipeline.MetricsDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to open metrics sink")
	}
	defer sink.Close()

	fmpClient := fmp.NewClient(cfg.Vendors.FMPAPIKey, cfg.Vendors.FMPRequestsPerSec)
	yahooClient := yahoo.NewClient(cfg.Vendors.YahooRequestsPerSec)
	avClient := alphavantage.NewClient(cfg.Vendors.AlphaVantageAPIKey, cfg.Vendors.AlphaVantageBudget)

	// Each scheduled invocation gets its own lease and monitor: leases
	// are token-stamped per holder and the monitor's counters are
	// per-run, so neither can be shared across overlapping jobs.
	build := func(mode string) scheduler.Runner {
		return pipeline.New(pipeline.Deps{
			Store:     db,
			Quotes:    fmpClient,
			Fallback:  yahooClient,
			Directory: fmpClient,
			Dividends: fmpClient,
			Holdings:  fmpClient,
			Profiles:  avClient,
			Publisher: producer,
			Permit:    runlock.New(redisClient, mode, cfg.Pipeline.LockTTL),
			Monitor:   metrics.NewMonitor(mode, sink),
			Logger:    logger,
		}, cfg.Pipeline)
	}

	sched := scheduler.New(build, pipeline.Options{}, logger)
	if err := sched.RegisterAll(scheduler.DefaultSchedules()); err != nil {
		logger.WithError(err).Fatal("failed to register schedules")
	}
	sched.Start()

	// The symbol-request consumer runs alongside the cron jobs.
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestsTopic, cfg.Kafka.GroupID, db, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("symbol request consumer failed")
		}
	}()

	<-ctx.Done()
	sched.Stop()
}
