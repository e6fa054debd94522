package market

import (
	"context"
	"fmt"
)

// Subscribe records which task categories an agent wants RFP
// notifications for, replacing the agent's previous subscription set.
// The directory is pure bookkeeping read by external pollers and the
// notify board; the engine never pushes anything itself.
func (e *Engine) Subscribe(ctx context.Context, agentID string, categories []TaskCategory) error {
	if agentID == "" {
		return fmt.Errorf("agent id is required: %w", ErrValidation)
	}
	for _, c := range categories {
		if !c.Valid() {
			return fmt.Errorf("unknown task category %q: %w", c, ErrValidation)
		}
	}
	return e.store.SetSubscriptions(ctx, agentID, categories)
}

// Subscribers returns the agents subscribed to a task category
func (e *Engine) Subscribers(ctx context.Context, category TaskCategory) ([]string, error) {
	return e.store.Subscribers(ctx, category)
}
