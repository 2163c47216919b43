package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	EventPostCreated         = "post.created"
	EventScheduleFailed      = "schedule.failed"
	EventScheduleRetried     = "schedule.retried"
	EventAccountDeauthorized = "account.deauthorized"
)

type Event struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	UserID  int64                  `json:"user_id"`
	Payload map[string]interface{} `json:"payload"`
}

// Notifier pushes lifecycle events toward connected clients. Delivery is
// fire-and-forget: failures are logged, never returned to the pipeline.
type Notifier interface {
	Push(ctx context.Context, event Event)
}

type redisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) Notifier {
	return &redisNotifier{client: client}
}

func (n *redisNotifier) Push(ctx context.Context, event Event) {
	if event.ID == "" {
		if id, err := gonanoid.New(); err == nil {
			event.ID = id
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	channel := fmt.Sprintf("realtime:user:%d", event.UserID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		slog.Info("failed to publish realtime event", "type", event.Type, "error", err.Error())
	}
}

type noopNotifier struct{}

// NewNoopNotifier is used when no Redis connection is configured.
func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Push(ctx context.Context, event Event) {}
