package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[domain.Symbol]*domain.DepthSnapshot
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[domain.Symbol]*domain.DepthSnapshot)}
}

func (c *Cache) SetDepth(ctx context.Context, symbol domain.Symbol, snap *domain.DepthSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[symbol] = snap.DeepCopy()
	return nil
}

func (c *Cache) GetDepth(ctx context.Context, symbol domain.Symbol) (*domain.DepthSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.store[symbol]
	if !ok {
		return nil, nil
	}
	return snap.DeepCopy(), nil
}

func (c *Cache) Invalidate(ctx context.Context, symbol domain.Symbol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, symbol)
	return nil
}
