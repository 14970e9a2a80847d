package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
)

// Service delivers daemon messages to one destination.
type Service interface {
	Publish(ctx context.Context, msg Message) error
}

// NewService fans messages out to the hub and to the ntfy and Redis mirrors
// that are configured. The hub always receives the message first so its
// sequence is visible to the mirrors.
func NewService(cfg *config.Config, hub *Hub, logger *slog.Logger) Service {
	logger = logging.NewComponentLogger(logger, "notifications")
	var mirrors []Service

	if cfg != nil {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
			mirrors = append(mirrors, NewNtfy(topic, &http.Client{Timeout: timeout}))
		}
		if addr := strings.TrimSpace(cfg.Notifications.RedisAddr); addr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:         addr,
				DialTimeout:  timeout,
				ReadTimeout:  timeout,
				WriteTimeout: timeout,
			})
			mirrors = append(mirrors, NewRedis(client, cfg.Notifications.RedisChannel, cfg.Notifications.HubCapacity))
		}
	}

	return &fanout{hub: hub, mirrors: mirrors, logger: logger}
}

type fanout struct {
	hub     *Hub
	mirrors []Service
	logger  *slog.Logger
}

func (f *fanout) Publish(ctx context.Context, msg Message) error {
	if f.hub != nil {
		msg = f.hub.Post(msg)
	}
	metrics.MessagesPublished.WithLabelValues(string(msg.Type)).Inc()

	var errs []error
	for _, mirror := range f.mirrors {
		if err := mirror.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logging.WarnWithContext(f.logger, "message mirror failed", "message_mirror_failed",
			logging.String("type", string(msg.Type)),
			logging.SubmissionID(msg.SubmissionID),
			logging.Error(err),
			logging.ErrorHint("check ntfy_topic and redis_addr"),
			logging.Impact("clients relying on the mirror miss this message; queue state is unaffected"),
		)
	}
	return err
}

// Noop discards every message.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }
