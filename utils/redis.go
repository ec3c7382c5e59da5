package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Perceptus-Labs/perceptus-object-detector/config"
	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StateMessage is what subscribers receive on the session channel.
type StateMessage struct {
	SessionID string              `json:"session_id"`
	Phase     models.Phase        `json:"phase"`
	State     models.SessionState `json:"state"`
	Timestamp time.Time           `json:"timestamp"`
}

// StatePublisher fans session state changes out over Redis pub/sub. Nothing
// is stored.
type StatePublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewStatePublisher(client redis.UniversalClient, channel string) *StatePublisher {
	if channel == "" {
		channel = "object-detector"
	}
	return &StatePublisher{client: client, channel: channel}
}

// ConnectRedis returns nil without error when no host is configured.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Host,
		Password:    cfg.Password,
		DB:          0,
		DialTimeout: 20 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := redisClient.Ping(pingCtx).Result(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return redisClient, nil
}

func (p *StatePublisher) Channel(sessionID string) string {
	return p.channel + ":" + sessionID
}

func (p *StatePublisher) Publish(ctx context.Context, sessionID string, state models.SessionState) error {
	payload, err := json.Marshal(StateMessage{
		SessionID: sessionID,
		Phase:     state.Phase(),
		State:     state,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return p.client.Publish(ctx, p.Channel(sessionID), payload).Err()
}

// Listener adapts the publisher to a controller state listener. Failures are
// logged and dropped.
func (p *StatePublisher) Listener(sessionID string, logger *zap.Logger) func(models.SessionState) {
	return func(state models.SessionState) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Publish(ctx, sessionID, state); err != nil {
			logger.Warn("Failed to publish session state", zap.Error(err))
		}
	}
}
