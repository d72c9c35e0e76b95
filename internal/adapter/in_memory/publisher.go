package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

// Publisher collects published events.
type Publisher struct {
	mu     sync.Mutex
	events []domain.Event
}

var _ port.EventPublisher = (*Publisher)(nil)

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *Publisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// Sink captures events synchronously, standing in for the dispatcher.
type Sink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *Sink) Enqueue(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *Sink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// Alerter records critical alerts.
type Alerter struct {
	mu     sync.Mutex
	alerts []port.Alert
}

var _ port.Alerter = (*Alerter)(nil)

func (a *Alerter) Critical(ctx context.Context, al port.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
}

func (a *Alerter) Alerts() []port.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]port.Alert(nil), a.alerts...)
}
