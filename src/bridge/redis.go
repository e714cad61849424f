package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisEnvelope wraps a frame with the originating instance ID so that a
// node can skip its own published frames.
type redisEnvelope struct {
	InstanceID string          `json:"instance_id"`
	Frame      json.RawMessage `json:"frame"`
}

// RedisBridge relays chat frames between server instances via Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge. It does not connect until Start.
func NewRedisBridge(cfg *RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		channel:    cfg.Channel(),
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the broadcast channel and begins relaying frames.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	sub := b.client.Subscribe(b.ctx, b.channel)
	if _, err := sub.Receive(b.ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish sends an encoded envelope to the other instances.
func (b *RedisBridge) Publish(frame []byte) error {
	data, err := json.Marshal(redisEnvelope{
		InstanceID: b.instanceID,
		Frame:      frame,
	})
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.channel, data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handlePayload(msg.Payload)
		case <-b.ctx.Done():
			return
		}
	}
}

// handlePayload decodes a pub/sub payload and forwards frames published by
// other instances to the local hub.
func (b *RedisBridge) handlePayload(payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	var frame types.Envelope
	if err := json.Unmarshal(env.Frame, &frame); err != nil || frame.Kind == "" {
		b.logger.Warn().
			Err(err).
			Str("from_instance", env.InstanceID).
			Msg("dropping malformed frame")
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("kind", string(frame.Kind)).
		Msg("relaying frame from redis")

	b.hub.BroadcastToLocal(env.Frame)
}
