package memory

import (
	"context"
	"sync"

	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
)

// Message is a published event together with its topic.
type Message struct {
	Topic string
	Event any
}

// Publisher keeps published events in memory. It is used when no broker is
// configured and in tests.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, Message{Topic: topic, Event: event})
	return nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := make([]Message, len(p.messages))
	copy(copied, p.messages)
	return copied
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

var (
	_ interfaces.EventPublisher = (*Publisher)(nil)
	_ interfaces.EventPublisher = NoopPublisher{}
)
