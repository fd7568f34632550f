package memory

import (
	"context"
	"sync"

	"github.com/ariefw/go-shop-saga/internal/event"
)

// Publisher records published envelopes for assertions in tests.
type Publisher struct {
	mu     sync.Mutex
	events []event.Envelope
	fail   error
}

func NewPublisher() *Publisher { return &Publisher{} }

// FailWith makes every Publish return err, for exercising the
// log-only failure path of phase "processed".
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *Publisher) Publish(ctx context.Context, env event.Envelope) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, env)
	return nil
}

func (p *Publisher) Events() []event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Envelope, len(p.events))
	copy(out, p.events)
	return out
}
