package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/tapedeck/internal/shared"
)

// DefaultChannel is the pub/sub channel settings patches are published on.
const DefaultChannel = "tapedeck:settings"

// RedisWatcher applies settings patches published by the admin collaborator.
type RedisWatcher struct {
	client  *redis.Client
	channel string
	manager *Manager
	logger  *log.Logger
}

// NewRedisWatcher connects to the Redis server at url (redis://host:port/db).
func NewRedisWatcher(url, channel string, manager *Manager, logger *log.Logger) (*RedisWatcher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %v", shared.ErrInvalidConfig, err)
	}
	return NewRedisWatcherWithClient(redis.NewClient(opts), channel, manager, logger), nil
}

// NewRedisWatcherWithClient wraps an existing client.
func NewRedisWatcherWithClient(client *redis.Client, channel string, manager *Manager, logger *log.Logger) *RedisWatcher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RedisWatcher{
		client:  client,
		channel: channel,
		manager: manager,
		logger:  shared.WithLogger(logger, "component", "settings-watcher", "channel", channel),
	}
}

// Run subscribes and applies patches until ctx is cancelled. Invalid messages are logged and skipped.
//
// ready, when non-nil, is closed once the subscription is confirmed.
func (w *RedisWatcher) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := w.client.Subscribe(ctx, w.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	w.logger.Info("watching for settings changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("settings subscription closed")
			}
			w.handle(msg.Payload)
		}
	}
}

func (w *RedisWatcher) handle(payload string) {
	var patch Patch
	if err := json.Unmarshal([]byte(payload), &patch); err != nil {
		w.logger.Warn("ignoring malformed settings message", "err", err)
		return
	}
	if patch.Empty() {
		return
	}
	if _, err := w.manager.ApplyPatch(patch); err != nil {
		w.logger.Warn("rejected settings message", "err", err)
	}
}

// Publish sends a patch to every watcher on the channel.
func (w *RedisWatcher) Publish(ctx context.Context, patch Patch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode settings patch: %w", err)
	}
	if err := w.client.Publish(ctx, w.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish settings patch: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (w *RedisWatcher) Close() error {
	return w.client.Close()
}
