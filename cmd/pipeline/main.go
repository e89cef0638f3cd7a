package main

import (
	"context"
	"errors"
	"flag"
	"os"
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
	"github.com/dividendscout/pipeline/internal/clients/alphavantage"
	"github.com/dividendscout/pipeline/internal/clients/fmp"
	"github.com/dividendscout/pipeline/internal/clients/yahoo"
)

func main() {
	os.Exit(run())
}

func run() int {
	mode := flag.String("mode", pipeline.ModeUpdate, "pipeline mode: update, discover, dividends, etf, cleanup")
	limit := flag.Int("limit", 0, "cap on symbols processed (0 = unlimited)")
	daysAhead := flag.Int("days-ahead", 0, "dividend calendar window in days (0 = config default)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		return 1
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
		logger.WithError(err).Error("failed to open metrics sink")
		return 1
	}
	defer sink.Close()

	fmpClient := fmp.NewClient(cfg.Vendors.FMPAPIKey, cfg.Vendors.FMPRequestsPerSec)
	yahooClient := yahoo.NewClient(cfg.Vendors.YahooRequestsPerSec)
	avClient := alphavantage.NewClient(cfg.Vendors.AlphaVantageAPIKey, cfg.Vendors.AlphaVantageBudget)

	pipe := pipeline.New(pipeline.Deps{
		Store:     db,
		Quotes:    fmpClient,
		Fallback:  yahooClient,
		Directory: fmpClient,
		Dividends: fmpClient,
		Holdings:  fmpClient,
		Profiles:  avClient,
		Publisher: producer,
		Permit:    runlock.New(redisClient, *mode, cfg.Pipeline.LockTTL),
		Monitor:   metrics.NewMonitor(*mode, sink),
		Logger:    logger,
	}, cfg.Pipeline)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{
		Limit:     *limit,
		DaysAhead: *daysAhead,
		ForceRun:  os.Getenv("FORCE_RUN") == "true",
	}

	err = pipe.Run(ctx, *mode, opts)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrLockHeld):
		// Another invocation is already running; not a failure.
		return 0
	case errors.Is(err, pipeline.ErrPartialFailure):
		logger.Warn("run completed with errors")
		return 1
	default:
		logger.WithError(err).Error("run failed")
		return 1
	}
}
