package eventing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pgclosets/go-common/logger"
)

// publishTimeout bounds each publish so a slow Redis never stalls the
// caller's request path.
const publishTimeout = 2 * time.Second

type redisPublisher struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

var _ Publisher = (*redisPublisher)(nil)

// NewRedisPublisher returns a Publisher that emits events on Redis
// pub/sub channels named "<prefix>.<subject>". The caller owns the
// redis.Client lifecycle; Close is a no-op on the client.
func NewRedisPublisher(client *redis.Client, prefix string, log logger.Logger) Publisher {
	return &redisPublisher{
		client: client,
		prefix: prefix,
		log:    log.With(map[string]interface{}{"component": "eventing"}),
	}
}

func (p *redisPublisher) channel(subject string) string {
	if p.prefix == "" {
		return subject
	}
	return p.prefix + "." + subject
}

func (p *redisPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	qctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(qctx, p.channel(subject), data).Err(); err != nil {
		p.log.Warn("publish %s failed: %v", subject, err)
		return err
	}
	return nil
}

// Close is a no-op; the caller owns the redis.Client lifecycle.
func (p *redisPublisher) Close() error {
	return nil
}
