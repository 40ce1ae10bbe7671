// Package relay forwards gateway events to other processes.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/broadcast"
)

const publishTimeout = 2 * time.Second

// RedisRelay publishes every event it receives as JSON on a Redis channel.
// Publish failures are logged and the event is dropped.
type RedisRelay struct {
	client  *redis.Client
	channel string
	sub     *broadcast.Subscription
	log     *log.Entry
}

func NewRedisRelay(client *redis.Client, channel string, sub *broadcast.Subscription) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		sub:     sub,
		log:     log.WithFields(log.Fields{"component": "redis-relay", "channel": channel}),
	}
}

// Run forwards events until the subscription closes or ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	r.log.Info("Relaying events to Redis")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-r.sub.Events():
			if !ok {
				return
			}
			if err := r.forward(ctx, e); err != nil {
				r.log.WithError(err).WithField("event", e.Kind).Warn("Failed to relay event")
			}
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, e broadcast.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, payload).Err()
}
