package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/jobs"
)

const pushTimeout = 5 * time.Second

// RedisEvents appends job events to a Redis list and reads them back. As a
// jobs.Observer it never fails the job; push errors are logged.
type RedisEvents struct {
	Client       *redis.Client
	List         string
	BlockTimeout time.Duration
	log          zerolog.Logger
}

func NewRedisEvents(client *redis.Client, list string, logger zerolog.Logger) *RedisEvents {
	return &RedisEvents{
		Client:       client,
		List:         list,
		BlockTimeout: 20 * time.Second,
		log:          logger,
	}
}

func (r *RedisEvents) Push(ctx context.Context, e jobs.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.Client.RPush(ctx, r.List, data).Err(); err != nil {
		return fmt.Errorf("failed to push event: %w", err)
	}
	return nil
}

func (r *RedisEvents) Notify(e jobs.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := r.Push(ctx, e); err != nil {
		r.log.Error().Err(err).Str("event", string(e.Type)).Str("group_id", e.GroupID).Msg("failed to record job event")
	}
}

// Next blocks for the oldest event on the list. It returns false when the
// block timeout passes without one.
func (r *RedisEvents) Next(ctx context.Context) (jobs.Event, bool, error) {
	result, err := r.Client.BLPop(ctx, r.BlockTimeout, r.List).Result()
	if errors.Is(err, redis.Nil) {
		return jobs.Event{}, false, nil
	}
	if err != nil {
		return jobs.Event{}, false, fmt.Errorf("failed to pop event: %w", err)
	}

	// result[0] is the list name, result[1] the payload
	var e jobs.Event
	if err := json.Unmarshal([]byte(result[1]), &e); err != nil {
		return jobs.Event{}, false, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return e, true, nil
}
