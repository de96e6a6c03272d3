package mocks

import (
	"context"
	"sync"
)

// EventPublisher records events published outside of a transaction.
type EventPublisher struct {
	mu     sync.Mutex
	events []any

	Err error
}

func (p *EventPublisher) Publish(ctx context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)

	return nil
}

func (p *EventPublisher) Events() []any {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]any(nil), p.events...)
}
