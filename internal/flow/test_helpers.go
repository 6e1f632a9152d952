package flow

import (
	"github.com/BTreeMap/precare/internal/store"
)

// NewMockStateManager creates a state manager over a fresh in-memory store for testing.
func NewMockStateManager() StateManager {
	return NewStoreBasedStateManager(store.NewInMemoryStore(), nil)
}
