package transfers

import (
	"context"
	"fmt"
)

// StateStore persists named progress markers.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// Checkpoint tracks the last block whose transfers are stored.
type Checkpoint struct {
	store StateStore
	name  string
}

// NewCheckpoint creates a checkpoint stored under name.
func NewCheckpoint(store StateStore, name string) *Checkpoint {
	return &Checkpoint{store: store, name: name}
}

// DefaultStateName is the checkpoint name used for a chain.
func DefaultStateName(chainID uint64) string {
	return fmt.Sprintf("lrt_transfers:%d", chainID)
}

func (c *Checkpoint) Load(ctx context.Context) (uint64, bool, error) {
	if c == nil || c.store == nil {
		return 0, false, nil
	}
	block, ok, err := c.store.LoadState(ctx, c.name)
	if err != nil {
		return 0, false, fmt.Errorf("load checkpoint %s: %w", c.name, err)
	}
	return block, ok, nil
}

func (c *Checkpoint) Save(ctx context.Context, lastProcessed uint64) error {
	if c == nil || c.store == nil {
		return nil
	}
	if err := c.store.SaveState(ctx, c.name, lastProcessed); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", c.name, err)
	}
	return nil
}
