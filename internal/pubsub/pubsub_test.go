package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishAfter(b Broker, topic string, payload string, d time.Duration) {
	go func() {
		time.Sleep(d)
		_ = b.Publish(context.Background(), topic, []byte(payload))
	}()
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case m := <-sub.Signal():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestMemBroker(t *testing.T) {
	require := require.New(t)

	b := NewMemBroker().(*memBroker)
	ctx := context.Background()

	// it's ok to publish before any subscriptions...
	require.NoError(b.Publish(ctx, "foodtrace/D1/data", []byte("{}")))

	sub1, err := b.Subscribe(ctx, "foodtrace/+/data")
	require.NoError(err)
	sub2, err := b.Subscribe(ctx, "shipment/environment")
	require.NoError(err)

	publishAfter(b, "foodtrace/D1/data", `{"kind":"temp"}`, 10*time.Millisecond)
	m := receive(t, sub1)
	require.Equal("foodtrace/D1/data", m.Topic)
	require.JSONEq(`{"kind":"temp"}`, string(m.Payload))

	// sub2 must not have seen the device topic
	select {
	case <-sub2.Signal():
		t.Fatal("environment subscription received a device message")
	default:
	}

	publishAfter(b, "shipment/environment", `{"shipment_id":"SH1"}`, 10*time.Millisecond)
	m = receive(t, sub2)
	require.Equal("shipment/environment", m.Topic)

	// closing all subscriptions releases memory
	sub1.Close()
	sub2.Close()
	b.RLock()
	defer b.RUnlock()
	require.Equal(0, len(b.subs))
}

func TestMemBrokerSubscriptionFollowsContext(t *testing.T) {
	b := NewMemBroker().(*memBroker)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := b.Subscribe(ctx, "foodtrace/+/data")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		b.RLock()
		defer b.RUnlock()
		return len(b.subs) == 0
	}, 2*time.Second, time.Millisecond)
}

func TestSubscriptionCloseWaitsForPump(t *testing.T) {
	// Close must not return while the pump goroutine is still running, and
	// calling it again must be a no-op.
	done := make(chan struct{})
	wg := &sync.WaitGroup{}
	sub := &Subscription{c: make(chan Message)}
	sub.closeFn = func() {
		close(done)
		wg.Wait()
	}

	pumpExited := false
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-done
		pumpExited = true
	}()

	sub.Close()
	require.True(t, pumpExited)
	sub.Close()
}

func TestTopicMatches(t *testing.T) {
	assert.True(t, TopicMatches("foodtrace/+/data", "foodtrace/D1/data"))
	assert.True(t, TopicMatches("shipment/environment", "shipment/environment"))
	assert.False(t, TopicMatches("foodtrace/+/data", "foodtrace/D1/extra/data"))
	assert.False(t, TopicMatches("foodtrace/+/data", "foodtrace/D1/status"))
	assert.False(t, TopicMatches("foodtrace/+/data", "shipment/environment"))
}
