package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/herald/internal/claim"
	"github.com/glizzus/herald/internal/config"
	"github.com/glizzus/herald/internal/datalayer"
	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/generator"
	"github.com/glizzus/herald/internal/handler"
	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/scheduler"
	"github.com/glizzus/herald/internal/timeparse"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

// schedulerOptions builds the optional claim and archive backends from the environment.
func schedulerOptions(ctx context.Context, cfg *config.SchedulerConfig, logger *slog.Logger) (scheduler.Options, func(), error) {
	opts := scheduler.Options{
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		DefaultTimezone: cfg.DefaultTimezone,
		Logger:          logger,
	}
	cleanup := func() {}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return opts, cleanup, fmt.Errorf("failed to load redis config: %w", err)
	}
	if redisConfig.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisConfig.Addr,
			Password: redisConfig.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return opts, cleanup, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cleanup = func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
		opts.Claimer = claim.NewRedisClaimer(rdb, redisConfig.ClaimTTL)
		logger.Info("Execution claims enabled", "addr", redisConfig.Addr, "ttl", redisConfig.ClaimTTL)
	}

	minioConfig, err := config.NewMinioConfigFromEnv()
	if err != nil {
		return opts, cleanup, fmt.Errorf("failed to load minio config: %w", err)
	}
	if minioConfig.Enabled() {
		minioStorage, err := datalayer.NewMinioStorage(minioConfig)
		if err != nil {
			return opts, cleanup, fmt.Errorf("failed to create minio storage: %w", err)
		}
		if err := minioStorage.EnsureBucket(ctx); err != nil {
			return opts, cleanup, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		opts.Archiver = datalayer.NewBlobArchiver(minioStorage, "")
		logger.Info("Event archive enabled", "endpoint", minioConfig.Endpoint, "bucket", minioConfig.Bucket)
	}

	return opts, cleanup, nil
}

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	schedulerConfig, err := config.NewSchedulerConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load scheduler config: %w", err)
	}
	level, _ := schedulerConfig.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	opts, cleanup, err := schedulerOptions(ctx, schedulerConfig, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	flows := handler.NewFlowManager(&generator.UUIDV4Generator{})
	session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready:             handler.ReadyLog,
		InteractionCreate: handler.MakeInteractionCreateHandler(flows, logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	store := repository.NewPostgresEventRepository(pool)
	directory := messaging.NewDiscordDirectory(session, schedulerConfig.SendRate)
	service := scheduler.New(store, directory, opts)
	service.RegisterHandler(eventhandler.NewReminderHandler())
	logger.Info("Event handlers registered", "types", service.HandledTypes())

	reminders := handler.NewReminders(service, timeparse.NewParser(), schedulerConfig.Location(), logger)
	flows.RegisterFlow(handler.PingFlow)
	for _, flow := range reminders.Flows() {
		flows.RegisterFlow(flow)
	}

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()

	if err := handler.EstablishCommands(session, discordConfig.CommandGuildID()); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	if err := service.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
