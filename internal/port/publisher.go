package port

import (
	"context"

	"github.com/olyamironova/perp-engine/internal/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type Alert struct {
	Kind    string
	Symbol  domain.Symbol
	Message string
	Fields  map[string]any
}

// Alerter is the operator-facing path for conditions that need manual intervention.
type Alerter interface {
	Critical(ctx context.Context, a Alert)
}
