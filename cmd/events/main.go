// Command events prints the job events published by cmd/upscale, one JSON
// line each.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/config"
	"github.com/vatsal3003/upscale-client/internal/jobs"
	"github.com/vatsal3003/upscale-client/internal/logging"
	"github.com/vatsal3003/upscale-client/internal/queue"
	"github.com/vatsal3003/upscale-client/internal/rabbitmq"
)

func main() {
	cfg := config.NewConfig()
	logger := logging.New(cfg.Logs)
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	printEvent := func(e jobs.Event) error {
		return enc.Encode(e)
	}

	var err error
	switch cfg.Events.Backend {
	case config.EventsRabbitMQ:
		err = tailRabbitMQ(ctx, cfg, logger, printEvent)
	case config.EventsRedis:
		err = tailRedis(ctx, cfg, logger, printEvent)
	default:
		err = fmt.Errorf("EVENTS_BACKEND must be %s or %s", config.EventsRabbitMQ, config.EventsRedis)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to tail job events")
		stop()
		os.Exit(1)
	}
}

func tailRabbitMQ(ctx context.Context, cfg *config.Config, logger zerolog.Logger, handle func(jobs.Event) error) error {
	consumer, err := rabbitmq.NewEventConsumer(cfg.Events.RabbitMQURL, cfg.Events.Exchange, cfg.Events.QueueName, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Consume(ctx, handle)
}

func tailRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, handle func(jobs.Event) error) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Events.Redis.Addr,
		Password: cfg.Events.Redis.Password,
		DB:       cfg.Events.Redis.DB,
	})
	defer client.Close()

	events := queue.NewRedisEvents(client, cfg.Events.Redis.List, logger)
	logger.Info().Str("list", events.List).Msg("waiting for job events")

	for {
		e, ok, err := events.Next(ctx)
		if ctx.Err() != nil {
			logger.Info().Msg("event tail shutting down")
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := handle(e); err != nil {
			logger.Error().Err(err).Str("event", string(e.Type)).Msg("failed to handle event")
		}
	}
}
