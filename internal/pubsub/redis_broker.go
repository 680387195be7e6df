package pubsub

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisBroker struct {
	redis  *redis.Client
	logger *zap.SugaredLogger
}

// type check the interface is implemented.
var _ Broker = &redisBroker{}

// NewRedisBroker creates a Broker on top of redis pub/sub channels.  Field
// gateways publish device payloads to "foodtrace/<deviceId>/data" and the
// environment feed to "shipment/environment".
func NewRedisBroker(client *redis.Client, logger *zap.SugaredLogger) Broker {
	return &redisBroker{
		redis:  client,
		logger: logger,
	}
}

// redis pattern subscriptions use glob syntax, the topic space uses a
// single-level "+" wildcard.
func globPattern(pattern string) string {
	return strings.ReplaceAll(pattern, "+", "*")
}

func (b *redisBroker) Subscribe(ctx context.Context, patterns ...string) (*Subscription, error) {
	globs := make([]string, 0, len(patterns))
	for _, p := range patterns {
		globs = append(globs, globPattern(p))
	}

	pubSub := b.redis.PSubscribe(ctx, globs...)
	// force the subscription to be established before any publisher races it
	if _, err := pubSub.Receive(ctx); err != nil {
		_ = pubSub.Close()
		return nil, err
	}

	sub := &Subscription{
		c: make(chan Message, 64),
	}

	done := make(chan struct{})
	wg := &sync.WaitGroup{}
	sub.closeFn = func() {
		close(done)
		_ = pubSub.Close()
		wg.Wait()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := pubSub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				// the glob cast a wider net than "+"; re-check the topic
				matched := false
				for _, p := range patterns {
					if TopicMatches(p, m.Channel) {
						matched = true
						break
					}
				}
				if !matched {
					continue
				}
				select {
				case sub.c <- Message{Topic: m.Channel, Payload: []byte(m.Payload)}:
				default:
					b.logger.Warnw("subscriber not draining, dropping message", "topic", m.Channel)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	context.AfterFunc(ctx, sub.Close)
	return sub, nil
}

func (b *redisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.redis.Publish(ctx, topic, payload).Err()
}

func (b *redisBroker) Close() error {
	return nil
}
