package pebble

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

const keyPrefix = "liq/"

var _ port.ResultStore = (*ResultStore)(nil)

// ResultStore journals liquidation results by position id so a restart still
// answers repeated liquidation requests with the original result.
type ResultStore struct {
	db *pebble.DB
}

func Open(dir string) (*ResultStore, error) {
	return open(dir, &pebble.Options{})
}

// OpenInMemory keeps the journal on an in-memory filesystem.
func OpenInMemory() (*ResultStore, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(dir string, opts *pebble.Options) (*ResultStore, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "pebble: open")
	}
	return &ResultStore{db: db}, nil
}

func key(positionID string) []byte { return []byte(keyPrefix + positionID) }

func (s *ResultStore) Load(ctx context.Context, positionID string) (*domain.LiquidationResult, error) {
	val, closer, err := s.db.Get(key(positionID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pebble: get %s", positionID)
	}
	defer closer.Close()

	var r domain.LiquidationResult
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, errors.Wrapf(err, "pebble: decode %s", positionID)
	}
	return &r, nil
}

func (s *ResultStore) Save(ctx context.Context, r *domain.LiquidationResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "pebble: encode result")
	}
	return errors.Wrapf(s.db.Set(key(r.PositionID), b, pebble.Sync), "pebble: set %s", r.PositionID)
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}
