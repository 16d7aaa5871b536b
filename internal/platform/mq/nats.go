package mq

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Bus carries store change notifications between writers and live queries.
// Delivery is best-effort; a subscriber that misses a notification catches
// up on its next snapshot.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	Close()
}

type Subscription interface {
	Unsubscribe() error
}

type natsBus struct {
	conn *nats.Conn
}

func NewBus(url string) (Bus, error) {
	conn, err := nats.Connect(url, nats.Name("gridmud-server"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &natsBus{conn: conn}, nil
}

func (b *natsBus) Publish(_ context.Context, subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

func (b *natsBus) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (b *natsBus) Close() {
	if b.conn != nil {
		b.conn.Drain()
		b.conn.Close()
	}
}

// NewNoopBus drops publishes and never delivers; live queries built on it
// still emit their initial snapshots.
func NewNoopBus() Bus {
	return noopBus{}
}

type noopBus struct{}

func (noopBus) Publish(context.Context, string, []byte) error { return nil }

func (noopBus) Subscribe(string, func(data []byte)) (Subscription, error) {
	return noopSubscription{}, nil
}

func (noopBus) Close() {}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() error { return nil }
