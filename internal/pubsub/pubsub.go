// The pubsub package provides the inbound telemetry transport: a small
// publish/subscribe abstraction with an in-process implementation for tests
// and local development, and a redis-backed implementation for deployments.
package pubsub

import (
	"context"
	"strings"
	"sync"
)

// Message is one inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Broker delivers messages published to a topic space.  Topic patterns use a
// single-level "+" wildcard, e.g. "foodtrace/+/data".
type Broker interface {
	Subscribe(ctx context.Context, patterns ...string) (*Subscription, error)
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Subscription is a stream of matched messages.
//
// Signal is provided for use in select statements:
//
//	sub, _ := broker.Subscribe(ctx, "foodtrace/+/data")
//	defer sub.Close()
//	for {
//		select {
//		case msg := <-sub.Signal():
//			handle(msg)
//		case <-ctx.Done():
//			return
//		}
//	}
type Subscription struct {
	c         chan Message
	closeOnce sync.Once
	closeFn   func()
}

func (sub *Subscription) Signal() <-chan Message {
	return sub.c
}

// Close is used to close out the subscription.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(sub.closeFn)
}

// TopicMatches reports whether topic matches pattern.  "+" matches exactly
// one topic level.
func TopicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	if len(p) != len(t) {
		return false
	}
	for i := range p {
		if p[i] == "+" {
			continue
		}
		if p[i] != t[i] {
			return false
		}
	}
	return true
}
