package pubsub

import (
	"context"
	"sync"
)

type memBroker struct {
	sync.RWMutex
	subs   map[*Subscription][]string
	closed bool
}

// type check the interface is implemented.
var _ Broker = &memBroker{}

// NewMemBroker creates an in-process Broker.  Delivery is best effort: a
// subscriber that is not draining its channel loses messages rather than
// blocking publishers, matching the no-redelivery contract of the inbound
// push stream.
func NewMemBroker() Broker {
	return &memBroker{
		subs: map[*Subscription][]string{},
	}
}

func (b *memBroker) Subscribe(ctx context.Context, patterns ...string) (*Subscription, error) {
	sub := &Subscription{
		c: make(chan Message, 64),
	}
	sub.closeFn = func() {
		b.Lock()
		delete(b.subs, sub)
		b.Unlock()
	}

	b.Lock()
	b.subs[sub] = patterns
	b.Unlock()

	context.AfterFunc(ctx, sub.Close)
	return sub, nil
}

func (b *memBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	var result []*Subscription
	b.RLock()
	for sub, patterns := range b.subs {
		for _, p := range patterns {
			if TopicMatches(p, topic) {
				result = append(result, sub)
				break
			}
		}
	}
	b.RUnlock()

	for _, sub := range result {
		select {
		case sub.c <- Message{Topic: topic, Payload: payload}:
		default:
		}
	}
	return nil
}

func (b *memBroker) Close() error {
	b.Lock()
	defer b.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
	}
	b.closed = true
	return nil
}
