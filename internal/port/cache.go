package port

import (
	"context"

	"github.com/olyamironova/perp-engine/internal/domain"
)

// Cache holds depth snapshots. A miss returns (nil, nil).
type Cache interface {
	SetDepth(ctx context.Context, symbol domain.Symbol, snap *domain.DepthSnapshot) error
	GetDepth(ctx context.Context, symbol domain.Symbol) (*domain.DepthSnapshot, error)
	Invalidate(ctx context.Context, symbol domain.Symbol) error
}
