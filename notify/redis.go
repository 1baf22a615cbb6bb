package notify

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// DefaultChannel is the pub/sub channel notices are published on.
const DefaultChannel = "circulation.notices"

var (
	ErrNilPublisher     = errors.New("publisher must not be nil")
	ErrEmptyChannel     = errors.New("channel must not be empty")
	ErrPublishingFailed = errors.New("publishing notice failed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher is the part of a go-redis client the RedisNotifier uses. *redis.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes notices as JSON Messages on a Redis pub/sub channel.
type RedisNotifier struct {
	publisher Publisher
	channel   string
	now       func() time.Time
}

// RedisOption configures a RedisNotifier.
type RedisOption func(*RedisNotifier) error

// WithChannel sets the channel notices are published on.
func WithChannel(channel string) RedisOption {
	return func(n *RedisNotifier) error {
		if channel == "" {
			return ErrEmptyChannel
		}

		n.channel = channel

		return nil
	}
}

// WithClock sets the source of SentAt.
func WithClock(now func() time.Time) RedisOption {
	return func(n *RedisNotifier) error {
		n.now = now
		return nil
	}
}

// NewRedisNotifier creates a RedisNotifier.
func NewRedisNotifier(publisher Publisher, options ...RedisOption) (*RedisNotifier, error) {
	if publisher == nil {
		return nil, ErrNilPublisher
	}

	n := &RedisNotifier{
		publisher: publisher,
		channel:   DefaultChannel,
		now:       time.Now,
	}

	for _, option := range options {
		if err := option(n); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// NotifyIssued implements circulation.Notifier.
func (n *RedisNotifier) NotifyIssued(ctx context.Context, notice circulation.IssueNotice) error {
	return n.publish(ctx, IssuedMessage(notice, n.now()))
}

// NotifyOverdue implements circulation.Notifier.
func (n *RedisNotifier) NotifyOverdue(ctx context.Context, notice circulation.OverdueNotice) error {
	return n.publish(ctx, OverdueMessage(notice, n.now()))
}

func (n *RedisNotifier) publish(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return errors.Join(ErrPublishingFailed, err)
	}

	if err = n.publisher.Publish(ctx, n.channel, payload).Err(); err != nil {
		return errors.Join(ErrPublishingFailed, err)
	}

	return nil
}
